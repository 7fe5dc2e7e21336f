// Package local is the in-process download engine: HTTP(S) items with
// optional multi-connection splitting, and magnet/.torrent items through a
// BitTorrent client.
package local

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// Engine creates local sessions.
type Engine struct {
	// Client, when set, is used for every HTTP request instead of a
	// transport built from the session options.
	Client *http.Client
}

func New() *Engine {
	return &Engine{}
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.Session = (*Session)(nil)

func (e *Engine) NewSession(ctx context.Context, opts engine.Options) (engine.Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, &types.EngineInitError{Err: err}
	}

	dir, err := utils.EnsureAbsPath(opts.Dir)
	if err != nil {
		return nil, &types.EngineInitError{Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.EngineInitError{Err: fmt.Errorf("failed to create %s: %w", dir, err)}
	}
	if err := checkWritable(dir); err != nil {
		return nil, &types.EngineInitError{Err: err}
	}
	opts.Dir = dir

	utils.Debug("engine: new session in %s (split=%d, continue=%v, check-certificate=%v)",
		dir, opts.GetSplit(), opts.Continue, opts.CheckCertificate)
	return newSession(ctx, opts, e.Client, state.IsConfigured()), nil
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".batchget-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
