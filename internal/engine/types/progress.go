package types

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressState is the live counter block shared between an item's fetch
// goroutines and the session that reports on it.
type ProgressState struct {
	GID           GID
	Downloaded    atomic.Int64
	ActiveWorkers atomic.Int32
	Done          atomic.Bool
	Error         atomic.Pointer[error]
	Paused        atomic.Bool
	CancelFunc    context.CancelFunc

	totalSize  int64
	name       string
	speed      int64
	lastSample time.Time
	lastBytes  int64

	mu sync.Mutex // Protects totalSize, name, speed, lastSample, lastBytes, CancelFunc
}

func NewProgressState(gid GID, totalSize int64) *ProgressState {
	return &ProgressState{
		GID:       gid,
		totalSize: totalSize,
	}
}

func (ps *ProgressState) SetTotalSize(size int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.totalSize = size
}

func (ps *ProgressState) TotalSize() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.totalSize
}

func (ps *ProgressState) SetName(name string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.name = name
}

func (ps *ProgressState) Name() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.name
}

func (ps *ProgressState) SetError(err error) {
	ps.Error.Store(&err)
}

func (ps *ProgressState) GetError() error {
	if e := ps.Error.Load(); e != nil {
		return *e
	}
	return nil
}

// Sample returns the current download speed in bytes per second. The rate is
// recomputed at most once per SpeedSampleInterval from the bytes moved since
// the previous sample.
func (ps *ProgressState) Sample(now time.Time) int64 {
	downloaded := ps.Downloaded.Load()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.lastSample.IsZero() {
		ps.lastSample = now
		ps.lastBytes = downloaded
		return ps.speed
	}
	elapsed := now.Sub(ps.lastSample)
	if elapsed < SpeedSampleInterval {
		return ps.speed
	}
	delta := downloaded - ps.lastBytes
	if delta < 0 {
		delta = 0
	}
	ps.speed = int64(float64(delta) / elapsed.Seconds())
	ps.lastSample = now
	ps.lastBytes = downloaded
	return ps.speed
}

// ResetSpeed clears the speed estimate, used when an item stops moving.
func (ps *ProgressState) ResetSpeed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.speed = 0
	ps.lastSample = time.Time{}
}

func (ps *ProgressState) SetCancel(cancel context.CancelFunc) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.CancelFunc = cancel
}

// Pause marks the item paused and cancels its in-flight fetch.
func (ps *ProgressState) Pause() {
	ps.Paused.Store(true)
	ps.mu.Lock()
	cancel := ps.CancelFunc
	ps.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (ps *ProgressState) Resume() {
	ps.Paused.Store(false)
}

func (ps *ProgressState) IsPaused() bool {
	return ps.Paused.Load()
}
