package local

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

func TestSegmentQueue_FIFO(t *testing.T) {
	q := newSegmentQueue()
	q.Push(types.Segment{Offset: 0, Length: 10})
	q.PushMultiple([]types.Segment{{Offset: 10, Length: 10}, {Offset: 20, Length: 5}})
	assert.Equal(t, 3, q.Len())

	for _, want := range []int64{0, 10, 20} {
		seg, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, seg.Offset)
	}
	assert.Equal(t, 0, q.Len())
}

func TestSegmentQueue_CloseUnblocksPop(t *testing.T) {
	q := newSegmentQueue()

	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Pop returned on an empty open queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

func TestSegmentQueue_ClosedStillDrains(t *testing.T) {
	q := newSegmentQueue()
	q.PushMultiple([]types.Segment{{Offset: 0, Length: 1}, {Offset: 1, Length: 1}})
	q.Close()

	_, ok := q.Pop()
	assert.True(t, ok)
	_, ok = q.Pop()
	assert.True(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestSegmentQueue_DrainRemaining(t *testing.T) {
	q := newSegmentQueue()
	for i := int64(0); i < 5; i++ {
		q.Push(types.Segment{Offset: i * 100, Length: 100})
	}
	_, _ = q.Pop()

	rest := q.DrainRemaining()
	require.Len(t, rest, 4)
	assert.Equal(t, int64(100), rest[0].Offset)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DrainRemaining())
}

func TestSegmentQueue_ConcurrentPop(t *testing.T) {
	q := newSegmentQueue()
	const n = 200
	for i := int64(0); i < n; i++ {
		q.Push(types.Segment{Offset: i, Length: 1})
	}
	q.Close()

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				seg, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[seg.Offset] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestSplitRange(t *testing.T) {
	tests := []struct {
		name string
		size int64
		n    int
		want int
	}{
		{"evenly split", 10 * types.MB, 6, 6},
		{"min segment caps count", 3 * types.MB, 6, 3},
		{"tiny file", 100, 6, 1},
		{"single connection", 5 * types.MB, 1, 1},
		{"zero connections", 2 * types.MB, 0, 1},
		{"empty", 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := splitRange(tt.size, tt.n)
			require.Len(t, segs, tt.want)

			// Contiguous and covering the whole file
			var next int64
			for i, s := range segs {
				assert.Equal(t, next, s.Offset, "segment %d", i)
				assert.Greater(t, s.Length, int64(0))
				if i < len(segs)-1 {
					assert.Zero(t, s.Offset%types.AlignSize)
				}
				next = s.End()
			}
			assert.Equal(t, tt.size, next)
		})
	}
}

func TestSumSegments(t *testing.T) {
	assert.Equal(t, int64(0), sumSegments(nil))
	assert.Equal(t, int64(30), sumSegments([]types.Segment{{Offset: 0, Length: 10}, {Offset: 50, Length: 20}}))
}
