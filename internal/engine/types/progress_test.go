package types

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewProgressState(t *testing.T) {
	ps := NewProgressState("0123456789abcdef", 1000)

	if ps.GID != "0123456789abcdef" {
		t.Errorf("GID = %s, want 0123456789abcdef", ps.GID)
	}
	if ps.TotalSize() != 1000 {
		t.Errorf("TotalSize = %d, want 1000", ps.TotalSize())
	}
	if ps.Downloaded.Load() != 0 {
		t.Errorf("Downloaded = %d, want 0", ps.Downloaded.Load())
	}
	if ps.Done.Load() {
		t.Error("Done should be false initially")
	}
	if ps.IsPaused() {
		t.Error("Paused should be false initially")
	}
}

func TestProgressState_Error(t *testing.T) {
	ps := NewProgressState("g", 100)

	if err := ps.GetError(); err != nil {
		t.Errorf("GetError = %v, want nil", err)
	}

	testErr := errors.New("boom")
	ps.SetError(testErr)

	if err := ps.GetError(); err != testErr {
		t.Errorf("GetError = %v, want %v", err, testErr)
	}
}

func TestProgressState_PauseWithCancelFunc(t *testing.T) {
	ps := NewProgressState("g", 100)

	ctx, cancel := context.WithCancel(context.Background())
	ps.SetCancel(cancel)

	select {
	case <-ctx.Done():
		t.Fatal("Context should not be cancelled yet")
	default:
	}

	ps.Pause()
	if !ps.IsPaused() {
		t.Error("Should be paused after Pause()")
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Context should be cancelled after Pause()")
	}

	ps.Resume()
	if ps.IsPaused() {
		t.Error("Should not be paused after Resume()")
	}
}

func TestProgressState_Sample(t *testing.T) {
	ps := NewProgressState("g", 10*MB)
	start := time.Unix(1000, 0)

	if got := ps.Sample(start); got != 0 {
		t.Fatalf("first sample = %d, want 0", got)
	}

	ps.Downloaded.Store(1 * MB)
	// Too soon, keep previous value
	if got := ps.Sample(start.Add(100 * time.Millisecond)); got != 0 {
		t.Errorf("early sample = %d, want 0", got)
	}

	if got := ps.Sample(start.Add(time.Second)); got != 1*MB {
		t.Errorf("sample after 1s = %d, want %d", got, 1*MB)
	}

	// No new bytes, rate drops to zero
	if got := ps.Sample(start.Add(2 * time.Second)); got != 0 {
		t.Errorf("idle sample = %d, want 0", got)
	}
}

func TestProgressState_ResetSpeed(t *testing.T) {
	ps := NewProgressState("g", 100)
	start := time.Unix(0, 0)
	ps.Sample(start)
	ps.Downloaded.Store(100)
	if got := ps.Sample(start.Add(time.Second)); got != 100 {
		t.Fatalf("sample = %d, want 100", got)
	}

	ps.ResetSpeed()
	if got := ps.Sample(start.Add(3 * time.Second)); got != 0 {
		t.Errorf("sample after reset = %d, want 0", got)
	}
}

func TestProgressState_AtomicOperations(t *testing.T) {
	ps := NewProgressState("g", 1000)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			ps.Downloaded.Add(100)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if ps.Downloaded.Load() != 1000 {
		t.Errorf("Downloaded = %d, want 1000 after 10 concurrent adds of 100", ps.Downloaded.Load())
	}
}
