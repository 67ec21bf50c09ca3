package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue(3)
	for _, l := range []string{"a", "b", "c"} {
		assert.False(t, q.Push(Frame{Line: l}))
	}
	assert.True(t, q.Push(Frame{Line: "d"}))
	assert.True(t, q.Push(Frame{Line: "e"}))

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())

	got := q.PopBatch(0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{got[0].Line, got[1].Line, got[2].Line})
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.PopBatch(0))
}

func TestQueue_PopBatchWraps(t *testing.T) {
	q := NewQueue(4)
	for _, l := range []string{"1", "2", "3"} {
		q.Push(Frame{Line: l})
	}
	first := q.PopBatch(2)
	require.Len(t, first, 2)
	assert.Equal(t, "1", first[0].Line)

	for _, l := range []string{"4", "5", "6"} {
		q.Push(Frame{Line: l})
	}
	rest := q.PopBatch(10)
	require.Len(t, rest, 4)
	assert.Equal(t, "3", rest[0].Line)
	assert.Equal(t, "6", rest[3].Line)
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueue_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueSize, NewQueue(0).Cap())
}

func TestQueue_ReadySignal(t *testing.T) {
	q := NewQueue(2)
	q.Push(Frame{Line: "a"})
	q.Push(Frame{Line: "b"})
	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready() not signalled after Push")
	}
}

func TestQueue_PushWaitBlocksUntilRoom(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.PushWait(ctx, Frame{Line: "a"}))
	require.NoError(t, q.PushWait(ctx, Frame{Line: "b"}))

	done := make(chan error, 1)
	go func() { done <- q.PushWait(ctx, Frame{Line: "c"}) }()

	select {
	case err := <-done:
		t.Fatalf("PushWait returned %v on a full queue", err)
	case <-time.After(20 * time.Millisecond):
	}

	got := q.PopBatch(1)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Line)
	require.NoError(t, <-done)

	rest := q.PopBatch(0)
	assert.Equal(t, []string{"b", "c"}, []string{rest[0].Line, rest[1].Line})
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueue_PushWaitCancelled(t *testing.T) {
	q := NewQueue(1)
	q.Push(Frame{Line: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.PushWait(ctx, Frame{Line: "b"}), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueue_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("keeps the newest frames in order", prop.ForAll(
		func(capacity int, n int) bool {
			q := NewQueue(capacity)
			for i := 0; i < n; i++ {
				q.Push(Frame{PGN: uint32(i)})
			}
			kept := n
			if kept > capacity {
				kept = capacity
			}
			if q.Len() != kept || q.Dropped() != uint64(n-kept) {
				return false
			}
			for i, f := range q.PopBatch(0) {
				if f.PGN != uint32(n-kept+i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}
