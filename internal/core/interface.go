package core

import (
	"context"
	"errors"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

var (
	// ErrSessionActive is returned by Submit while a previous batch is still
	// running. The running batch is left alone.
	ErrSessionActive = errors.New("a batch is already active")

	// ErrNoValidURIs is returned by Submit, together with the result listing
	// the failures, when none of the URIs could be registered.
	ErrNoValidURIs = errors.New("no valid URIs in batch")
)

// BatchService is the control surface for batch downloads. The TUI and the
// CLI use it without knowing whether the engine runs in this process or in
// another batchget instance reached over the local API.
type BatchService interface {
	// Submit creates a session in dir, registers every URI and starts
	// monitoring it. URIs that fail to register are reported in the result
	// and skipped.
	Submit(ctx context.Context, uris []string, dir string) (*types.SubmitResult, error)

	// PauseAll, ResumeAll and Stop act on the active batch and do nothing
	// when there is none.
	PauseAll() error
	ResumeAll() error
	Stop() error

	// Status describes the active or most recent batch.
	Status() (*types.BatchStatus, error)

	// StreamSnapshots returns a channel receiving every snapshot of the
	// active batch until ctx is done or the returned cleanup is called.
	StreamSnapshots(ctx context.Context) (<-chan types.Snapshot, func(), error)

	// Shutdown stops any active batch and releases the service.
	Shutdown() error
}
