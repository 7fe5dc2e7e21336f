// Package engine defines the contract between the batch monitor and a
// download engine. The monitor only ever talks to a Session.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

// Engine creates download sessions.
type Engine interface {
	NewSession(ctx context.Context, opts Options) (Session, error)
}

// Session is one engine instance owning a set of items.
//
// PollOnce, ActiveGIDs, Stats and GlobalCounts are only called from the
// monitor goroutine. Pause, Resume and Shutdown may be called from any
// goroutine.
type Session interface {
	// AddURI registers a URI and returns its GID. Malformed or unsupported
	// input fails with *types.InvalidURIError.
	AddURI(uri string) (types.GID, error)

	// PollOnce advances the engine by one unit of work, waiting at most the
	// configured step timeout. It returns false once the session has nothing
	// left to do or after Shutdown.
	PollOnce() (bool, error)

	// ActiveGIDs lists items that are active or waiting, in submit order.
	ActiveGIDs() []types.GID

	// Stats returns the item's current counters. ok is false when the item
	// is unknown or has completed, errored or been removed.
	Stats(gid types.GID) (item types.DownloadItem, ok bool)

	// GlobalCounts returns the number of active items and of waiting items,
	// where waiting includes paused items.
	GlobalCounts() (numActive, numWaiting int)

	Pause(gid types.GID) error
	Resume(gid types.GID) error

	// Shutdown cancels every transfer. Idempotent.
	Shutdown() error

	// Close releases the session. Idempotent.
	Close() error
}

// Options is the pass-through engine configuration for one session.
type Options struct {
	Dir                     string
	Split                   int
	Continue                bool
	CheckCertificate        bool
	MaxConcurrentDownloads  int
	MaxOverallDownloadLimit int64 // bytes/sec, 0 = unlimited
	UserAgent               string
	KeepRunning             bool
	StepTimeout             time.Duration

	// BatchID tags journal entries written by the engine.
	BatchID string
}

// Validate reports configuration the engine cannot start with.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Dir) == "" {
		return &types.ConfigError{Field: "dir", Reason: "must not be empty"}
	}
	if o.Split < 0 {
		return &types.ConfigError{Field: "split", Reason: "must not be negative"}
	}
	if o.MaxOverallDownloadLimit < 0 {
		return &types.ConfigError{Field: "max_overall_download_limit", Reason: "must not be negative"}
	}
	return nil
}

func (o Options) GetSplit() int {
	if o.Split <= 0 {
		return types.DefaultSplit
	}
	if o.Split > types.MaxSplit {
		return types.MaxSplit
	}
	return o.Split
}

func (o Options) GetMaxConcurrentDownloads() int {
	if o.MaxConcurrentDownloads <= 0 {
		return types.DefaultMaxConcurrentDownloads
	}
	return o.MaxConcurrentDownloads
}

func (o Options) GetUserAgent() string {
	if o.UserAgent == "" {
		return types.DefaultUserAgent
	}
	return o.UserAgent
}

func (o Options) GetStepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return types.DefaultStepTimeout
	}
	return o.StepTimeout
}
