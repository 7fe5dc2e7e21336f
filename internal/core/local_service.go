package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/monitor"
	"github.com/surge-downloader/batchget/internal/utils"
)

const listenerBuffer = 100

// LocalBatchService implements BatchService on an in-process engine.
type LocalBatchService struct {
	engine engine.Engine
	opts   engine.Options
	cfg    monitor.Config

	mu       sync.Mutex
	batchID  string
	dir      string
	total    int
	mon      *monitor.Monitor
	last     *types.Snapshot
	consumer func(types.Snapshot)
	// Closed when the relay of the current batch has finished.
	relayDone chan struct{}

	// Broadcast fields
	listeners  []chan types.Snapshot
	listenerMu sync.Mutex

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewLocalBatchService creates a service whose batches run on eng. opts is
// the template for every session; Dir and BatchID are filled in per batch.
func NewLocalBatchService(eng engine.Engine, opts engine.Options, cfg monitor.Config) *LocalBatchService {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalBatchService{
		engine: eng,
		opts:   opts,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

var _ BatchService = (*LocalBatchService)(nil)

// SetConsumer registers a callback invoked with every snapshot, in order,
// on the relay goroutine. It replaces any previous consumer.
func (s *LocalBatchService) SetConsumer(fn func(types.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumer = fn
}

func (s *LocalBatchService) Submit(ctx context.Context, uris []string, dir string) (*types.SubmitResult, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, &types.ConfigError{Field: "dir", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, errors.New("service is shut down")
	}
	if s.mon != nil {
		return nil, ErrSessionActive
	}

	batchID := uuid.New().String()
	opts := s.opts
	opts.Dir = dir
	opts.BatchID = batchID

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The session outlives the request that created it
	sess, err := s.engine.NewSession(context.WithoutCancel(ctx), opts)
	if err != nil {
		var initErr *types.EngineInitError
		if !errors.As(err, &initErr) {
			err = &types.EngineInitError{Err: err}
		}
		utils.Debug("core: engine init failed for %s: %v", dir, err)
		return nil, err
	}

	result := &types.SubmitResult{BatchID: batchID}
	for i, uri := range uris {
		gid, err := sess.AddURI(uri)
		if err != nil {
			var invalid *types.InvalidURIError
			if !errors.As(err, &invalid) {
				invalid = &types.InvalidURIError{URI: uri, Err: err}
			}
			invalid.Index = i
			result.Failures = append(result.Failures, invalid)
			utils.Debug("core: rejected uri %d %q: %v", i, uri, invalid.Err)
			continue
		}
		result.GIDs = append(result.GIDs, gid)
	}

	if len(result.GIDs) == 0 {
		_ = sess.Shutdown()
		if err := sess.Close(); err != nil {
			utils.Debug("core: close empty session: %v", err)
		}
		return result, ErrNoValidURIs
	}

	if abs, err := utils.EnsureAbsPath(dir); err == nil {
		dir = abs
	}
	if state.IsConfigured() {
		if err := state.RecordBatch(batchID, dir, len(result.GIDs)); err != nil {
			utils.Debug("core: failed to record batch %s: %v", batchID, err)
		}
	}

	mon := monitor.New(sess, batchID, result.GIDs, s.cfg)
	if err := mon.Start(); err != nil {
		_ = sess.Shutdown()
		_ = sess.Close()
		return nil, err
	}

	s.batchID = batchID
	s.dir = dir
	s.total = len(result.GIDs)
	s.mon = mon
	s.last = nil

	s.relayDone = make(chan struct{})
	go s.relay(mon, batchID, s.relayDone)

	utils.Debug("core: batch %s started with %d items (%d rejected) in %s",
		batchID, len(result.GIDs), len(result.Failures), dir)
	return result, nil
}

// relay hands every snapshot of mon to the consumer and the listeners.
func (s *LocalBatchService) relay(mon *monitor.Monitor, batchID string, done chan struct{}) {
	defer close(done)

	for snap := range mon.Snapshots() {
		last := snap
		s.mu.Lock()
		s.last = &last
		consumer := s.consumer
		s.mu.Unlock()

		if consumer != nil {
			consumer(snap)
		}
		s.broadcast(snap)

		if snap.Final && state.IsConfigured() {
			if err := state.FinishBatch(batchID, snap.Reason, snap.Err); err != nil {
				utils.Debug("core: failed to finish batch %s: %v", batchID, err)
			}
		}
	}

	s.mu.Lock()
	if s.mon == mon {
		s.mon = nil
	}
	s.mu.Unlock()
}

func (s *LocalBatchService) broadcast(snap types.Snapshot) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for _, ch := range s.listeners {
		// Non-blocking send to avoid stalling if a client is slow
		select {
		case ch <- snap:
			continue
		default:
		}
		if !snap.Final {
			continue
		}
		// The final snapshot replaces the oldest queued one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *LocalBatchService) active() *monitor.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mon
}

func (s *LocalBatchService) PauseAll() error {
	if m := s.active(); m != nil {
		m.PauseAll()
	}
	return nil
}

func (s *LocalBatchService) ResumeAll() error {
	if m := s.active(); m != nil {
		m.UnpauseAll()
	}
	return nil
}

func (s *LocalBatchService) Stop() error {
	if m := s.active(); m != nil {
		m.Shutdown()
	}
	return nil
}

func (s *LocalBatchService) Status() (*types.BatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &types.BatchStatus{
		BatchID: s.batchID,
		Dir:     s.dir,
		Total:   s.total,
		State:   types.StateIdle,
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	switch {
	case s.mon != nil:
		st.State = s.mon.State()
		st.Paused = s.mon.PausedGIDs()
	case s.batchID != "":
		st.State = types.StateStopped
	}
	return st, nil
}

// StreamSnapshots returns a channel that receives every relayed snapshot.
func (s *LocalBatchService) StreamSnapshots(ctx context.Context) (<-chan types.Snapshot, func(), error) {
	ch := make(chan types.Snapshot, listenerBuffer)
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenerMu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.listenerMu.Lock()
			defer s.listenerMu.Unlock()
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}

	// Cleanup listener on context cancellation
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		cleanup()
	}()

	return ch, cleanup, nil
}

// Wait blocks until the active batch, if any, has delivered its final
// snapshot or ctx is done.
func (s *LocalBatchService) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.relayDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the active batch, waits for its final snapshot to be
// relayed and closes every listener.
func (s *LocalBatchService) Shutdown() error {
	s.shutdownOnce.Do(func() {
		if m := s.active(); m != nil {
			m.Shutdown()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Wait(ctx); err != nil {
			utils.Debug("core: batch did not finish before shutdown: %v", err)
		}

		// Stop listeners
		s.cancel()
	})
	return nil
}
