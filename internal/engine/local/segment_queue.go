package local

import (
	"sync"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

// segmentQueue hands byte ranges to the connections of one split item.
type segmentQueue struct {
	segments []types.Segment
	head     int
	mu       sync.Mutex
	cond     *sync.Cond
	done     bool
}

func newSegmentQueue() *segmentQueue {
	q := &segmentQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *segmentQueue) Push(s types.Segment) {
	q.mu.Lock()
	q.segments = append(q.segments, s)
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *segmentQueue) PushMultiple(segs []types.Segment) {
	q.mu.Lock()
	q.segments = append(q.segments, segs...)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Pop blocks until a segment is available or the queue is closed and empty.
func (q *segmentQueue) Pop() (types.Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head >= len(q.segments) && !q.done {
		q.cond.Wait()
	}

	if q.head >= len(q.segments) {
		return types.Segment{}, false
	}

	s := q.segments[q.head]
	q.head++
	if q.head > len(q.segments)/2 {
		q.segments = q.segments[q.head:]
		q.head = 0
	}
	return s, true
}

func (q *segmentQueue) Close() {
	q.mu.Lock()
	q.done = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *segmentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segments) - q.head
}

// DrainRemaining empties the queue and returns what was left in it.
func (q *segmentQueue) DrainRemaining() []types.Segment {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.segments) {
		return nil
	}

	remaining := make([]types.Segment, len(q.segments)-q.head)
	copy(remaining, q.segments[q.head:])
	q.segments = nil
	q.head = 0
	return remaining
}

// splitRange cuts [0,size) into at most n aligned segments of at least
// types.MinSegment bytes.
func splitRange(size int64, n int) []types.Segment {
	if size <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	segSize := size / int64(n)
	if segSize < types.MinSegment {
		segSize = types.MinSegment
	}
	segSize = (segSize / types.AlignSize) * types.AlignSize
	if segSize == 0 {
		segSize = types.AlignSize
	}

	var out []types.Segment
	for off := int64(0); off < size; off += segSize {
		length := segSize
		if off+length > size {
			length = size - off
		}
		out = append(out, types.Segment{Offset: off, Length: length})
	}

	// Fold a tiny tail into the previous segment
	if len(out) > n {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		out[len(out)-1].Length += last.Length
	}
	return out
}
