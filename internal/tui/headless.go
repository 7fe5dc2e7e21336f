package tui

import (
	"fmt"
	"io"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// Printer writes snapshots as plain text lines, for --headless runs and
// terminals without a TTY.
type Printer struct {
	w       io.Writer
	verbose bool
}

// NewPrinter returns a printer writing to w. With verbose set every active
// item gets its own line under the summary.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	return &Printer{w: w, verbose: verbose}
}

// Print writes one snapshot.
func (p *Printer) Print(snap types.Snapshot) {
	if snap.Final {
		line := fmt.Sprintf("Batch %s: %s (%d/%d complete)", shortID(snap.BatchID), snap.Reason, snap.Completed, snap.Total)
		if snap.Err != "" {
			line += ": " + snap.Err
		}
		fmt.Fprintln(p.w, line)
		return
	}

	var speed int64
	for _, it := range snap.Items {
		speed += it.DownloadSpeed
	}
	fmt.Fprintf(p.w, "[%s] %d/%d complete, %d active, %s\n",
		snap.At.Format("15:04:05"), snap.Completed, snap.Total, len(snap.Items), utils.FormatSpeed(speed))

	if !p.verbose {
		return
	}
	for _, it := range snap.Items {
		name := it.Filename
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(p.w, "  %s %3d%% %s %s %s\n",
			it.GID.Short(), it.Progress(), utils.FormatSize(it.CompletedLength, it.TotalLength),
			utils.FormatSpeed(it.DownloadSpeed), name)
	}
}

// Run prints every snapshot from stream until it closes and returns the
// terminal snapshot, or nil if the stream closed without one.
func (p *Printer) Run(stream <-chan types.Snapshot) *types.Snapshot {
	for snap := range stream {
		p.Print(snap)
		if snap.Final {
			final := snap
			return &final
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
