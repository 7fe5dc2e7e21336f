package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGID(t *testing.T) {
	seen := make(map[GID]bool)
	for i := 0; i < 100; i++ {
		g := NewGID()
		assert.Len(t, string(g), 16)
		assert.NotEqual(t, GID("0000000000000000"), g)
		assert.False(t, seen[g], "duplicate gid %s", g)
		seen[g] = true
	}
	assert.Equal(t, "01234567", GID("0123456789abcdef").Short())
	assert.Equal(t, "abc", GID("abc").Short())
}

func TestDownloadStatus_Progress(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		completed int64
		want      int64
	}{
		{"unknown size", 0, 500, 0},
		{"empty", 1000, 0, 0},
		{"half", 1000, 500, 50},
		{"floor", 3, 1, 33},
		{"done", 2048, 2048, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DownloadStatus{TotalLength: tt.total, CompletedLength: tt.completed}
			assert.Equal(t, tt.want, d.Progress())
		})
	}
}

func TestDownloadItem_Status(t *testing.T) {
	item := DownloadItem{
		GID:             "00000000000000a1",
		URI:             "http://example.com/a.bin",
		TotalLength:     10,
		CompletedLength: 4,
		DownloadSpeed:   2,
		Name:            "a.bin",
		State:           ItemActive,
	}
	assert.Equal(t, DownloadStatus{
		GID:             "00000000000000a1",
		TotalLength:     10,
		CompletedLength: 4,
		DownloadSpeed:   2,
		Filename:        "a.bin",
	}, item.Status())
}

func TestItemState(t *testing.T) {
	assert.True(t, ItemActive.IsRunnable())
	assert.True(t, ItemWaiting.IsRunnable())
	assert.False(t, ItemPaused.IsRunnable())
	assert.False(t, ItemPaused.IsFinished())
	assert.True(t, ItemComplete.IsFinished())
	assert.True(t, ItemError.IsFinished())
	assert.True(t, ItemRemoved.IsFinished())
}

func TestCompletedCount(t *testing.T) {
	assert.Equal(t, 0, CompletedCount(3, 2, 1))
	assert.Equal(t, 1, CompletedCount(3, 1, 1))
	assert.Equal(t, 3, CompletedCount(3, 0, 0))
	// Engine may know about more items than the batch
	assert.Equal(t, 0, CompletedCount(2, 3, 1))
	assert.Equal(t, 2, CompletedCount(2, -1, 0))
}

func TestSegment_End(t *testing.T) {
	assert.Equal(t, int64(150), Segment{Offset: 100, Length: 50}.End())
}

func TestErrors(t *testing.T) {
	cause := errors.New("unsupported scheme")
	inv := &InvalidURIError{Index: 3, URI: "notaurl", Err: cause}
	assert.ErrorIs(t, inv, cause)
	assert.Contains(t, inv.Error(), "notaurl")

	var target *InvalidURIError
	wrapped := &EngineInitError{Err: inv}
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, 3, target.Index)

	step := &EngineStepError{Err: cause}
	assert.ErrorIs(t, step, cause)

	cfg := &ConfigError{Field: "dir", Reason: "must not be empty"}
	assert.Equal(t, "invalid dir: must not be empty", cfg.Error())
}

func TestInvalidURIError_JSON(t *testing.T) {
	in := &InvalidURIError{Index: 1, URI: "ftp://x", Err: errors.New("unsupported scheme")}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out InvalidURIError
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, "ftp://x", out.URI)
	require.Error(t, out.Err)
	assert.Equal(t, "unsupported scheme", out.Err.Error())
}
