package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
)

// StubEngine hands out StubSessions and records the options it was given.
type StubEngine struct {
	// Err makes NewSession fail with an *types.EngineInitError wrapping it.
	Err error
	// Setup, when set, configures each new session before it is returned.
	Setup func(*StubSession)

	mu       sync.Mutex
	opts     []engine.Options
	sessions []*StubSession
}

func (e *StubEngine) NewSession(_ context.Context, opts engine.Options) (engine.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = append(e.opts, opts)
	if e.Err != nil {
		return nil, &types.EngineInitError{Err: e.Err}
	}
	s := NewStubSession()
	s.KeepRunning = opts.KeepRunning
	if e.Setup != nil {
		e.Setup(s)
	}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Last returns the most recent session, or nil.
func (e *StubEngine) Last() *StubSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Options returns every Options value passed to NewSession.
func (e *StubEngine) Options() []engine.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Options(nil), e.opts...)
}

// StubSession is an in-memory engine.Session whose items only change when
// a test says so.
type StubSession struct {
	// Reject, when set, is consulted by AddURI; a non-nil result rejects the URI.
	Reject func(uri string) error
	// StepDelay is slept inside every PollOnce.
	StepDelay time.Duration
	// OnPoll runs at the start of every PollOnce with the poll count.
	OnPoll func(n int64)
	// KeepRunning keeps PollOnce returning true with nothing left to do.
	KeepRunning bool

	mu       sync.Mutex
	items    []*types.DownloadItem
	byGID    map[types.GID]*types.DownloadItem
	pauses   map[types.GID]int
	resumes  map[types.GID]int
	stepErr  error
	stopped  bool
	closed   bool
	nextGID  int
	statsHit atomic.Int64

	polls     atomic.Int64
	shutdowns atomic.Int32
	closes    atomic.Int32
}

func NewStubSession() *StubSession {
	return &StubSession{
		StepDelay: time.Millisecond,
		byGID:     make(map[types.GID]*types.DownloadItem),
		pauses:    make(map[types.GID]int),
		resumes:   make(map[types.GID]int),
	}
}

var _ engine.Session = (*StubSession)(nil)

func (s *StubSession) AddURI(uri string) (types.GID, error) {
	if s.Reject != nil {
		if err := s.Reject(uri); err != nil {
			return "", &types.InvalidURIError{URI: uri, Err: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGID++
	gid := types.GID(fmt.Sprintf("%016x", s.nextGID))
	it := &types.DownloadItem{GID: gid, URI: uri, State: types.ItemActive, Name: uri}
	s.items = append(s.items, it)
	s.byGID[gid] = it
	return gid, nil
}

func (s *StubSession) PollOnce() (bool, error) {
	n := s.polls.Add(1)
	if s.OnPoll != nil {
		s.OnPoll(n)
	}
	if s.StepDelay > 0 {
		time.Sleep(s.StepDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, &types.EngineStepError{Err: errors.New("session closed")}
	}
	if s.stopped {
		return false, nil
	}
	if s.stepErr != nil {
		return false, &types.EngineStepError{Err: s.stepErr}
	}
	if s.KeepRunning {
		return true, nil
	}
	for _, it := range s.items {
		if it.State.IsRunnable() || it.State == types.ItemPaused {
			return true, nil
		}
	}
	return false, nil
}

func (s *StubSession) ActiveGIDs() []types.GID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.GID
	for _, it := range s.items {
		if it.State.IsRunnable() {
			out = append(out, it.GID)
		}
	}
	return out
}

func (s *StubSession) Stats(gid types.GID) (types.DownloadItem, bool) {
	s.statsHit.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byGID[gid]
	if !ok || it.State.IsFinished() {
		return types.DownloadItem{}, false
	}
	return *it, true
}

func (s *StubSession) GlobalCounts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active, waiting int
	for _, it := range s.items {
		switch it.State {
		case types.ItemActive:
			active++
		case types.ItemWaiting, types.ItemPaused:
			waiting++
		}
	}
	return active, waiting
}

func (s *StubSession) Pause(gid types.GID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byGID[gid]
	if !ok {
		return types.ErrUnknownGID
	}
	s.pauses[gid]++
	if it.State.IsRunnable() {
		it.State = types.ItemPaused
		it.DownloadSpeed = 0
	}
	return nil
}

func (s *StubSession) Resume(gid types.GID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byGID[gid]
	if !ok {
		return types.ErrUnknownGID
	}
	s.resumes[gid]++
	if it.State == types.ItemPaused {
		it.State = types.ItemActive
	}
	return nil
}

func (s *StubSession) Shutdown() error {
	s.shutdowns.Add(1)
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *StubSession) Close() error {
	s.closes.Add(1)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// SetProgress updates the counters of gid.
func (s *StubSession) SetProgress(gid types.GID, completed, total, speed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.byGID[gid]; ok {
		it.CompletedLength = completed
		it.TotalLength = total
		it.DownloadSpeed = speed
	}
}

// SetState moves gid to st.
func (s *StubSession) SetState(gid types.GID, st types.ItemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.byGID[gid]; ok {
		it.State = st
	}
}

// CompleteAll marks every item complete so the session drains.
func (s *StubSession) CompleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		it.State = types.ItemComplete
	}
}

// FailSteps makes every later PollOnce fail with err.
func (s *StubSession) FailSteps(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepErr = err
}

func (s *StubSession) GIDs() []types.GID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.GID, len(s.items))
	for i, it := range s.items {
		out[i] = it.GID
	}
	return out
}

func (s *StubSession) State(gid types.GID) types.ItemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.byGID[gid]; ok {
		return it.State
	}
	return ""
}

func (s *StubSession) PauseCalls(gid types.GID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses[gid]
}

func (s *StubSession) ResumeCalls(gid types.GID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes[gid]
}

func (s *StubSession) Polls() int64         { return s.polls.Load() }
func (s *StubSession) StatsCalls() int64    { return s.statsHit.Load() }
func (s *StubSession) ShutdownCalls() int32 { return s.shutdowns.Load() }
func (s *StubSession) CloseCalls() int32    { return s.closes.Load() }
