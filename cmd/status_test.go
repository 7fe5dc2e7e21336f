package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

func TestPrintStatus_Idle(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &types.BatchStatus{State: types.StateIdle})
	assert.Equal(t, "No batch has been submitted\n", buf.String())
}

func TestPrintStatus(t *testing.T) {
	st := &types.BatchStatus{
		BatchID: "batch-1",
		State:   types.StatePaused,
		Dir:     "/downloads",
		Total:   2,
		Paused:  []types.GID{"0123456789abcdef"},
		Last: &types.Snapshot{
			Completed: 1,
			Total:     2,
			Items: []types.DownloadStatus{
				{GID: "0123456789abcdef", TotalLength: 1000, CompletedLength: 500, Filename: "a.iso"},
			},
		},
	}

	var buf bytes.Buffer
	printStatus(&buf, st)
	out := buf.String()

	assert.Contains(t, out, "Batch:  batch-1")
	assert.Contains(t, out, "State:  paused")
	assert.Contains(t, out, "Done:   1/2")
	assert.Contains(t, out, "Paused: 01234567")
	assert.Contains(t, out, "a.iso")
	assert.Contains(t, out, "50")
}

func TestPrintStatus_NoSnapshotYet(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &types.BatchStatus{BatchID: "b", State: types.StateCreated, Total: 4})
	assert.Contains(t, buf.String(), "Done:   0/4")
	assert.NotContains(t, buf.String(), "GID")
}
