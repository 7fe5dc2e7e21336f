// Package monitor drives one batch session: it polls the engine, gates
// snapshot emission to a fixed interval and applies pause, resume and
// shutdown requests between poll steps.
package monitor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

var ErrAlreadyStarted = errors.New("monitor already started")

const commandBuffer = 16

// Config tunes a Monitor. Zero values fall back to the defaults.
type Config struct {
	// Interval is the minimum time between two emitted snapshots.
	Interval time.Duration
	// Buffer is the capacity of the snapshot channel. When it is full the
	// oldest pending snapshot is dropped.
	Buffer int
}

func (c Config) GetInterval() time.Duration {
	if c.Interval <= 0 {
		return types.DefaultPollInterval
	}
	return c.Interval
}

func (c Config) GetBuffer() int {
	if c.Buffer <= 0 {
		return types.SnapshotChannelBuffer
	}
	return c.Buffer
}

type command int

const (
	cmdPauseAll command = iota
	cmdUnpauseAll
)

// Monitor owns a session for its whole lifetime. The GID bookkeeping is
// only touched by the loop goroutine; other goroutines talk to it through
// commands and read the copies it publishes.
type Monitor struct {
	session engine.Session
	batchID string
	cfg     Config

	// Loop-owned.
	allGIDs    []types.GID
	pausedGIDs []types.GID
	pausedSet  map[types.GID]struct{}
	isPaused   bool
	seq        uint64

	stopped      atomic.Bool
	started      atomic.Bool
	shutdownOnce sync.Once

	cmds      chan command
	snapshots chan types.Snapshot
	done      chan struct{}

	// Published by the loop for readers on other goroutines.
	mu        sync.Mutex
	state     types.BatchState
	published []types.GID
	err       error
}

// New wraps session. gids is the ordered set of items registered for the
// batch; it is copied and never changes afterwards.
func New(session engine.Session, batchID string, gids []types.GID, cfg Config) *Monitor {
	return &Monitor{
		session:   session,
		batchID:   batchID,
		cfg:       cfg,
		allGIDs:   append([]types.GID(nil), gids...),
		pausedSet: make(map[types.GID]struct{}),
		cmds:      make(chan command, commandBuffer),
		snapshots: make(chan types.Snapshot, cfg.GetBuffer()),
		done:      make(chan struct{}),
		state:     types.StateCreated,
	}
}

// Start launches the poll loop.
func (m *Monitor) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	m.setState(types.StateRunning)
	utils.Debug("monitor %s: started with %d items", m.batchID, len(m.allGIDs))
	go m.run()
	return nil
}

// Snapshots delivers emitted snapshots. The last value is always a Final
// snapshot, after which the channel is closed.
func (m *Monitor) Snapshots() <-chan types.Snapshot {
	return m.snapshots
}

// PauseAll asks the loop to pause every active or waiting item.
func (m *Monitor) PauseAll() {
	m.send(cmdPauseAll)
}

// UnpauseAll asks the loop to resume every item it paused.
func (m *Monitor) UnpauseAll() {
	m.send(cmdUnpauseAll)
}

// Shutdown stops the batch. It may be called from any goroutine, any number
// of times; the engine is told to shut down exactly once and the loop exits
// on its next iteration.
func (m *Monitor) Shutdown() {
	m.stopped.Store(true)
	m.shutdownOnce.Do(func() {
		utils.Debug("monitor %s: shutdown requested", m.batchID)
		if err := m.session.Shutdown(); err != nil {
			utils.Debug("monitor %s: engine shutdown: %v", m.batchID, err)
		}
	})
	m.setState(types.StateStopped)
}

// Done is closed once the loop has exited and the session is released.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err returns the engine error that ended the loop, if any.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Monitor) State() types.BatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) AllGIDs() []types.GID {
	return append([]types.GID(nil), m.allGIDs...)
}

// PausedGIDs returns the items paused by the last PauseAll as seen by the
// loop.
func (m *Monitor) PausedGIDs() []types.GID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.GID(nil), m.published...)
}

func (m *Monitor) send(c command) {
	if m.stopped.Load() {
		return
	}
	select {
	case m.cmds <- c:
	case <-m.done:
	}
}

func (m *Monitor) setState(st types.BatchState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == types.StateStopped {
		return
	}
	m.state = st
}

func (m *Monitor) run() {
	defer close(m.done)

	interval := m.cfg.GetInterval()
	last := time.Now()
	reason := types.ReasonDrained
	var stepErr error

	for {
		m.applyCommands()
		if m.stopped.Load() {
			reason = types.ReasonStopped
			break
		}

		more, err := m.session.PollOnce()
		if err != nil {
			var se *types.EngineStepError
			if !errors.As(err, &se) {
				err = &types.EngineStepError{Err: err}
			}
			stepErr = err
			reason = types.ReasonError
			break
		}
		if !more {
			if m.stopped.Load() {
				reason = types.ReasonStopped
			}
			break
		}

		if time.Since(last) < interval {
			continue
		}
		last = time.Now()

		items := m.collect()
		if m.isPaused || m.stopped.Load() {
			continue
		}
		m.emit(m.snapshot(items))
	}

	m.finish(reason, stepErr)
}

// collect reads the per-item counters of every active or waiting item.
// Items that finish between the listing and the lookup are skipped.
func (m *Monitor) collect() []types.DownloadStatus {
	gids := m.session.ActiveGIDs()
	items := make([]types.DownloadStatus, 0, len(gids))
	for _, gid := range gids {
		item, ok := m.session.Stats(gid)
		if !ok {
			continue
		}
		items = append(items, item.Status())
	}
	return items
}

func (m *Monitor) snapshot(items []types.DownloadStatus) types.Snapshot {
	active, waiting := m.session.GlobalCounts()
	m.seq++
	total := len(m.allGIDs)
	return types.Snapshot{
		BatchID:   m.batchID,
		Seq:       m.seq,
		Items:     items,
		Completed: types.CompletedCount(total, active, waiting),
		Total:     total,
		At:        time.Now(),
	}
}

func (m *Monitor) applyCommands() {
	for {
		select {
		case c := <-m.cmds:
			if m.stopped.Load() {
				continue
			}
			switch c {
			case cmdPauseAll:
				m.pauseAll()
			case cmdUnpauseAll:
				m.unpauseAll()
			}
		default:
			return
		}
	}
}

func (m *Monitor) pauseAll() {
	for _, gid := range m.allGIDs {
		if _, seen := m.pausedSet[gid]; seen {
			continue
		}
		item, ok := m.session.Stats(gid)
		if !ok || !item.State.IsRunnable() {
			continue
		}
		if err := m.session.Pause(gid); err != nil {
			utils.Debug("monitor %s: pause %s: %v", m.batchID, gid, err)
			continue
		}
		m.pausedSet[gid] = struct{}{}
		m.pausedGIDs = append(m.pausedGIDs, gid)
	}
	m.isPaused = true
	m.publishPaused()
	m.setState(types.StatePaused)
	utils.Debug("monitor %s: paused %d items", m.batchID, len(m.pausedGIDs))
}

func (m *Monitor) unpauseAll() {
	for _, gid := range m.pausedGIDs {
		if err := m.session.Resume(gid); err != nil {
			utils.Debug("monitor %s: resume %s: %v", m.batchID, gid, err)
		}
	}
	utils.Debug("monitor %s: resumed %d items", m.batchID, len(m.pausedGIDs))
	m.pausedGIDs = nil
	m.pausedSet = make(map[types.GID]struct{})
	m.isPaused = false
	m.publishPaused()
	m.setState(types.StateRunning)
}

func (m *Monitor) publishPaused() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append([]types.GID(nil), m.pausedGIDs...)
}

// finish releases the session and sends the terminal snapshot.
func (m *Monitor) finish(reason types.EndReason, stepErr error) {
	final := m.snapshot(nil)
	final.Final = true
	final.Reason = reason
	if stepErr != nil {
		final.Err = stepErr.Error()
		utils.Debug("monitor %s: stopped on engine error: %v", m.batchID, stepErr)
	} else {
		utils.Debug("monitor %s: finished (%s), %d/%d completed", m.batchID, reason, final.Completed, final.Total)
	}

	if err := m.session.Close(); err != nil {
		utils.Debug("monitor %s: close session: %v", m.batchID, err)
	}

	m.mu.Lock()
	m.err = stepErr
	m.state = types.StateStopped
	m.mu.Unlock()

	m.emit(final)
	close(m.snapshots)
}

// emit never blocks: when the consumer lags, the oldest pending snapshot
// makes room for the new one.
func (m *Monitor) emit(s types.Snapshot) {
	for {
		select {
		case m.snapshots <- s:
			return
		default:
		}
		select {
		case <-m.snapshots:
		default:
		}
	}
}
