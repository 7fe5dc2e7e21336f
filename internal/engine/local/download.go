package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// runHTTP downloads one HTTP(S) item into the session directory.
func (s *Session) runHTTP(ctx context.Context, it *item) error {
	probe, err := probeServer(ctx, s.client, it.uri, s.opts.GetUserAgent())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	destPath := s.claimPath(it, probe.Filename)
	it.progress.SetName(probe.Filename)
	if probe.FileSize > 0 {
		it.progress.SetTotalSize(probe.FileSize)
	}
	s.journalItem(it)

	if s.opts.Continue && probe.FileSize > 0 {
		if fi, err := os.Stat(destPath); err == nil && fi.Size() == probe.FileSize {
			utils.Debug("engine: %s already complete at %s", it.gid, destPath)
			it.progress.Downloaded.Store(probe.FileSize)
			return s.finish(it, destPath, probe.ContentType)
		}
	}

	partPath := destPath + types.IncompleteSuffix
	if probe.SupportsRange && probe.FileSize > 0 && s.opts.GetSplit() > 1 {
		err = s.fetchSegmented(ctx, it, partPath, probe.FileSize)
		if errors.Is(err, errRangeIgnored) {
			utils.Debug("engine: %s ignored ranges, falling back to one connection", it.uri)
			single := *probe
			single.SupportsRange = false
			err = s.fetchStream(ctx, it, partPath, &single)
		}
	} else {
		err = s.fetchStream(ctx, it, partPath, probe)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(partPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", destPath, err)
	}
	return s.finish(it, destPath, probe.ContentType)
}

// finish records the completed file and clears any resume state.
func (s *Session) finish(it *item, destPath, contentType string) error {
	mime := sniffMIME(destPath, contentType)
	s.mu.Lock()
	it.mime = mime
	s.mu.Unlock()
	if s.journal {
		if err := state.DeleteResume(it.uri, destPath); err != nil {
			utils.Debug("engine: failed to clear resume state for %s: %v", destPath, err)
		}
	}
	return nil
}

// fetchSegmented splits the remaining bytes across several connections,
// each writing its range in place.
func (s *Session) fetchSegmented(ctx context.Context, it *item, partPath string, size int64) error {
	segs, already := s.resumeSegments(it, partPath, size)

	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", partPath, err)
	}
	defer func() { _ = f.Close() }()

	if segs == nil {
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("failed to preallocate %s: %w", partPath, err)
		}
		segs = splitRange(size, s.opts.GetSplit())
		already = 0
	}
	it.progress.Downloaded.Store(already)

	queue := newSegmentQueue()
	queue.PushMultiple(segs)
	queue.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		leftovers []types.Segment
		firstErr  error
		wg        sync.WaitGroup
	)

	workers := s.opts.GetSplit()
	if workers > len(segs) {
		workers = len(segs)
	}
	it.progress.ActiveWorkers.Store(int32(workers))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer it.progress.ActiveWorkers.Add(-1)
			for {
				seg, ok := queue.Pop()
				if !ok {
					return
				}
				if wctx.Err() != nil {
					mu.Lock()
					leftovers = append(leftovers, seg)
					mu.Unlock()
					continue
				}
				n, err := s.fetcher.fetchRange(wctx, it.uri, seg.Offset, seg.Length, f, func(b int) {
					it.progress.Downloaded.Add(int64(b))
				})
				if err != nil {
					mu.Lock()
					if n < seg.Length {
						leftovers = append(leftovers, types.Segment{Offset: seg.Offset + n, Length: seg.Length - n})
					}
					if firstErr == nil && !isCancellation(err) {
						firstErr = err
					}
					mu.Unlock()
					cancel()
				}
			}
		}()
	}
	wg.Wait()

	if len(leftovers) == 0 && firstErr == nil {
		return f.Sync()
	}

	_ = f.Sync()
	s.saveResume(it, partPath, size, leftovers)

	if firstErr != nil {
		if errors.Is(firstErr, errRangeIgnored) {
			return fmt.Errorf("segmented download of %s: %w", it.uri, firstErr)
		}
		return firstErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return context.Canceled
}

// resumeSegments returns the ranges still missing from partPath, or nil
// when the download has to start over.
func (s *Session) resumeSegments(it *item, partPath string, size int64) ([]types.Segment, int64) {
	hint := s.takeResume(it)
	fi, err := os.Stat(partPath)
	if err != nil || fi.Size() != size {
		return nil, 0
	}

	// Same session: the ranges left behind by the last pause
	if hint != nil && hint.total == size && len(hint.segments) > 0 {
		return hint.segments, size - sumSegments(hint.segments)
	}

	if !s.opts.Continue || !s.journal {
		return nil, 0
	}
	rec, err := state.LoadResume(it.uri, it.destPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			utils.Debug("engine: failed to load resume state for %s: %v", it.uri, err)
		}
		return nil, 0
	}
	if rec.TotalSize != size {
		utils.Debug("engine: size changed for %s (%d -> %d), restarting", it.uri, rec.TotalSize, size)
		return nil, 0
	}
	utils.Debug("engine: resuming %s with %d segments", it.uri, len(rec.Segments))
	return rec.Segments, size - rec.Remaining()
}

func (s *Session) saveResume(it *item, partPath string, size int64, segs []types.Segment) {
	s.setResume(it, &resumeHint{total: size, segments: segs})
	if !s.journal {
		return
	}
	if err := state.SaveResume(it.uri, it.destPath, size, segs); err != nil {
		utils.Debug("engine: failed to save resume state for %s: %v", partPath, err)
	}
}

// fetchStream downloads over a single connection, appending to an existing
// partial file when the server allows it.
func (s *Session) fetchStream(ctx context.Context, it *item, partPath string, probe *probeResult) error {
	var offset int64
	sameSession := s.takeResume(it) != nil
	if fi, err := os.Stat(partPath); err == nil && probe.SupportsRange {
		if (sameSession || s.opts.Continue) && (probe.FileSize < 0 || fi.Size() <= probe.FileSize) {
			offset = fi.Size()
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", partPath, err)
	}
	defer func() { _ = f.Close() }()

	it.progress.Downloaded.Store(offset)
	it.progress.ActiveWorkers.Store(1)
	defer it.progress.ActiveWorkers.Store(0)

	if probe.FileSize >= 0 && offset == probe.FileSize {
		return f.Sync()
	}

	onBytes := func(b int) { it.progress.Downloaded.Add(int64(b)) }
	n, err := s.fetcher.fetchRange(ctx, it.uri, offset, -1, f, onBytes)
	if errors.Is(err, errRangeIgnored) {
		utils.Debug("engine: %s ignored range, restarting from zero", it.uri)
		if err := f.Truncate(0); err != nil {
			return err
		}
		offset = 0
		it.progress.Downloaded.Store(0)
		n, err = s.fetcher.fetchRange(ctx, it.uri, 0, -1, f, onBytes)
	}
	if err != nil {
		_ = f.Sync()
		// The partial file is ours to continue on resume
		s.setResume(it, &resumeHint{total: probe.FileSize})
		return err
	}

	got := offset + n
	if probe.FileSize > 0 && got != probe.FileSize {
		return fmt.Errorf("size mismatch: got %d of %d bytes", got, probe.FileSize)
	}
	if probe.FileSize <= 0 {
		it.progress.SetTotalSize(got)
	}
	return f.Sync()
}

func sumSegments(segs []types.Segment) int64 {
	var n int64
	for _, s := range segs {
		n += s.Length
	}
	return n
}
