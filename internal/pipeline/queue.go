// internal/pipeline/queue.go
package pipeline

import (
	"context"
	"sync"
	"time"
)

// Frame is one queued input: an ASCII line, or a raw PGN payload when Binary
// is set.
type Frame struct {
	Line     string
	Binary   bool
	PGN      uint32
	Payload  []byte
	Received time.Time
}

// DefaultQueueSize bounds the input queue when no size is configured.
const DefaultQueueSize = 1024

// Queue is a bounded FIFO ring. When full, Push overwrites the oldest frame so
// a stalled consumer always resumes on recent data; PushWait instead waits for
// room and never drops.
type Queue struct {
	mu      sync.Mutex
	items   []Frame
	head    int // next read
	size    int
	dropped uint64
	ready   chan struct{}
	space   chan struct{}
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		items: make([]Frame, capacity),
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

// Push appends f without blocking. Returns true when an older frame was
// dropped to make room.
func (q *Queue) Push(f Frame) bool {
	q.mu.Lock()
	dropped := false
	capacity := len(q.items)
	if q.size == capacity {
		q.items[q.head] = Frame{}
		q.head = (q.head + 1) % capacity
		q.size--
		q.dropped++
		dropped = true
	}
	q.items[(q.head+q.size)%capacity] = f
	q.size++
	q.mu.Unlock()

	signal(q.ready)
	return dropped
}

// PushWait appends f, waiting while the queue is full. Returns ctx.Err() when
// ctx is done before room frees up.
func (q *Queue) PushWait(ctx context.Context, f Frame) error {
	for {
		q.mu.Lock()
		capacity := len(q.items)
		if q.size < capacity {
			q.items[(q.head+q.size)%capacity] = f
			q.size++
			room := q.size < capacity
			q.mu.Unlock()

			signal(q.ready)
			if room {
				// pass the wakeup on to another waiting producer
				signal(q.space)
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.space:
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PopBatch removes up to max frames in arrival order. max <= 0 takes all.
func (q *Queue) PopBatch(max int) []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	if max <= 0 || max > q.size {
		max = q.size
	}
	out := make([]Frame, max)
	capacity := len(q.items)
	for i := range out {
		out[i] = q.items[q.head]
		q.items[q.head] = Frame{}
		q.head = (q.head + 1) % capacity
	}
	q.size -= max
	signal(q.space)
	return out
}

// Ready is signalled after every Push. One signal may cover several frames.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.items) }

// Dropped returns the number of frames overwritten since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
