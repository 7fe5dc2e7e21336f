package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/source"
	"github.com/surge-downloader/batchget/internal/utils"
)

var (
	errSessionClosed  = errors.New("session closed")
	errSessionStopped = errors.New("session is shutting down")
)

const eventBuffer = 64

// Session runs the items of one batch. Each active item has its own
// goroutine; PollOnce applies their completions one step at a time.
type Session struct {
	opts     engine.Options
	ctx      context.Context
	cancel   context.CancelFunc
	client   *http.Client
	limiter  *rate.Limiter
	fetcher  *rangeFetcher
	journal  bool
	torrents *torrentManager

	mu    sync.Mutex
	items []*item
	byGID map[types.GID]*item
	paths map[string]types.GID

	events chan itemEvent
	wg     sync.WaitGroup

	stopped      atomic.Bool
	closed       atomic.Bool
	shutdownOnce sync.Once
	closeOnce    sync.Once
	closeErr     error
}

type item struct {
	gid      types.GID
	uri      string
	kind     source.Kind
	progress *types.ProgressState
	state    types.ItemState
	err      error
	running  bool
	destPath string
	mime     string

	// Left behind by an interrupted run, consumed by the next one.
	resume *resumeHint
}

type resumeHint struct {
	total    int64
	segments []types.Segment
}

type itemEvent struct {
	gid types.GID
	err error
}

func newSession(ctx context.Context, opts engine.Options, client *http.Client, journal bool) *Session {
	sctx, cancel := context.WithCancel(ctx)
	limiter := newLimiter(opts.MaxOverallDownloadLimit)
	if client == nil {
		client = newHTTPClient(opts)
	}
	s := &Session{
		opts:    opts,
		ctx:     sctx,
		cancel:  cancel,
		client:  client,
		limiter: limiter,
		fetcher: &rangeFetcher{client: client, userAgent: opts.GetUserAgent(), limiter: limiter},
		journal: journal,
		byGID:   make(map[types.GID]*item),
		paths:   make(map[string]types.GID),
		events:  make(chan itemEvent, eventBuffer),
	}
	s.torrents = newTorrentManager(opts, limiter)
	return s
}

func (s *Session) AddURI(uri string) (types.GID, error) {
	uri = source.Normalize(uri)
	if s.stopped.Load() || s.closed.Load() {
		return "", &types.InvalidURIError{URI: uri, Err: errSessionStopped}
	}
	if err := source.Validate(uri); err != nil {
		return "", &types.InvalidURIError{URI: uri, Err: err}
	}

	s.mu.Lock()
	gid := types.NewGID()
	for s.byGID[gid] != nil {
		gid = types.NewGID()
	}
	it := &item{
		gid:      gid,
		uri:      uri,
		kind:     source.KindOf(uri),
		progress: types.NewProgressState(gid, 0),
		state:    types.ItemWaiting,
	}
	s.items = append(s.items, it)
	s.byGID[gid] = it
	s.mu.Unlock()

	utils.Debug("engine: added %s as %s", uri, gid)
	s.journalItem(it)
	return gid, nil
}

func (s *Session) PollOnce() (bool, error) {
	if s.closed.Load() {
		return false, &types.EngineStepError{Err: errSessionClosed}
	}
	if s.stopped.Load() {
		return false, nil
	}

	s.startQueued()
	if !s.hasWork() && !s.opts.KeepRunning {
		return false, nil
	}

	timer := time.NewTimer(s.opts.GetStepTimeout())
	defer timer.Stop()

	select {
	case ev := <-s.events:
		s.apply(ev)
		s.drainEvents()
	case <-timer.C:
	case <-s.ctx.Done():
		return false, nil
	}

	if s.stopped.Load() {
		return false, nil
	}
	s.startQueued()
	return s.hasWork() || s.opts.KeepRunning, nil
}

func (s *Session) ActiveGIDs() []types.GID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.GID
	for _, it := range s.items {
		if it.state.IsRunnable() {
			out = append(out, it.gid)
		}
	}
	return out
}

func (s *Session) Stats(gid types.GID) (types.DownloadItem, bool) {
	s.mu.Lock()
	it, ok := s.byGID[gid]
	if !ok || it.state.IsFinished() {
		s.mu.Unlock()
		return types.DownloadItem{}, false
	}
	st := it.state
	uri := it.uri
	s.mu.Unlock()

	total := it.progress.TotalSize()
	completed := it.progress.Downloaded.Load()
	if total > 0 && completed > total {
		completed = total
	}
	var speed int64
	if st == types.ItemActive {
		speed = it.progress.Sample(time.Now())
	}
	return types.DownloadItem{
		GID:             gid,
		URI:             uri,
		TotalLength:     total,
		CompletedLength: completed,
		DownloadSpeed:   speed,
		Name:            it.progress.Name(),
		State:           st,
	}, true
}

func (s *Session) GlobalCounts() (numActive, numWaiting int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		switch it.state {
		case types.ItemActive:
			numActive++
		case types.ItemWaiting, types.ItemPaused:
			numWaiting++
		}
	}
	return numActive, numWaiting
}

func (s *Session) Pause(gid types.GID) error {
	s.mu.Lock()
	it, ok := s.byGID[gid]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("pause %s: %w", gid, types.ErrUnknownGID)
	}
	if !it.state.IsRunnable() {
		s.mu.Unlock()
		return nil
	}
	it.state = types.ItemPaused
	s.mu.Unlock()

	it.progress.Pause()
	it.progress.ResetSpeed()
	utils.Debug("engine: paused %s", gid)
	return nil
}

func (s *Session) Resume(gid types.GID) error {
	s.mu.Lock()
	it, ok := s.byGID[gid]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("resume %s: %w", gid, types.ErrUnknownGID)
	}
	if it.state != types.ItemPaused {
		s.mu.Unlock()
		return nil
	}
	it.state = types.ItemWaiting
	s.mu.Unlock()

	it.progress.Resume()
	utils.Debug("engine: resumed %s", gid)
	return nil
}

func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
		utils.Debug("engine: shutdown requested")
	})
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Shutdown()
		s.wg.Wait()
		s.drainEvents()
		s.closeErr = s.torrents.close()
		s.closed.Store(true)
		utils.Debug("engine: session closed")
	})
	return s.closeErr
}

// startQueued promotes waiting items up to the concurrency limit.
func (s *Session) startQueued() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return
	}
	active := 0
	for _, it := range s.items {
		if it.running {
			active++
		}
	}
	limit := s.opts.GetMaxConcurrentDownloads()
	for _, it := range s.items {
		if active >= limit {
			break
		}
		if it.state != types.ItemWaiting || it.running {
			continue
		}
		s.startLocked(it)
		active++
	}
}

func (s *Session) startLocked(it *item) {
	ictx, cancel := context.WithCancel(s.ctx)
	it.progress.SetCancel(cancel)
	it.progress.Resume()
	it.state = types.ItemActive
	it.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		var err error
		switch it.kind {
		case source.KindMagnet, source.KindTorrentURL:
			err = s.runTorrent(ictx, it)
		default:
			err = s.runHTTP(ictx, it)
		}

		select {
		case s.events <- itemEvent{gid: it.gid, err: err}:
		case <-s.ctx.Done():
			// Close drains what made it into the buffer
			select {
			case s.events <- itemEvent{gid: it.gid, err: err}:
			default:
			}
		}
	}()
}

func (s *Session) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.apply(ev)
		default:
			return
		}
	}
}

func (s *Session) apply(ev itemEvent) {
	s.mu.Lock()
	it, ok := s.byGID[ev.gid]
	if !ok {
		s.mu.Unlock()
		return
	}
	it.running = false

	switch {
	case ev.err == nil:
		it.state = types.ItemComplete
		it.progress.Done.Store(true)
	case isCancellation(ev.err):
		// Paused items stay paused; anything else goes back in the queue
		if it.state != types.ItemPaused {
			it.state = types.ItemWaiting
		}
	default:
		it.state = types.ItemError
		it.err = ev.err
		it.progress.SetError(ev.err)
	}
	st := it.state
	s.mu.Unlock()

	it.progress.ResetSpeed()
	if st == types.ItemError {
		utils.Debug("engine: %s failed: %v", it.gid, ev.err)
	} else {
		utils.Debug("engine: %s is %s", it.gid, st)
	}
	s.journalItem(it)
}

func (s *Session) hasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.running || it.state.IsRunnable() || it.state == types.ItemPaused {
			return true
		}
	}
	return false
}

// claimPath reserves a destination for name inside the session directory,
// renaming to name.1.ext, name.2.ext ... when another item holds it.
func (s *Session) claimPath(it *item, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.destPath != "" {
		return it.destPath
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(s.opts.Dir, name)
	for i := 1; ; i++ {
		owner, taken := s.paths[candidate]
		if !taken || owner == it.gid {
			break
		}
		candidate = filepath.Join(s.opts.Dir, fmt.Sprintf("%s.%d%s", base, i, ext))
	}
	s.paths[candidate] = it.gid
	it.destPath = candidate
	return candidate
}

func (s *Session) setResume(it *item, hint *resumeHint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.resume = hint
}

func (s *Session) takeResume(it *item) *resumeHint {
	s.mu.Lock()
	defer s.mu.Unlock()
	hint := it.resume
	it.resume = nil
	return hint
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
