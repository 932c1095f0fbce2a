package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

func task(id string) document.Task {
	return document.Task{UserID: "alice", DocType: document.TypeNote, DocID: id, Op: document.OpIndex}
}

func TestQueue_FIFO(t *testing.T) {
	q := New(4)
	ctx := t.Context()

	require.NoError(t, q.Enqueue(ctx, task("1")))
	require.NoError(t, q.Enqueue(ctx, task("2")))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", got.DocID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", got.DocID)
}

func TestQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := New(1)
	ctx := t.Context()
	require.NoError(t, q.Enqueue(ctx, task("1")))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(ctx, task("2"))
	}()

	select {
	case err := <-blocked:
		t.Fatalf("enqueue on full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, <-blocked, "enqueue completes once room frees up")
}

func TestQueue_EnqueueHonorsContext(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(t.Context(), task("1")))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, task("2"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New(4)
	ctx := t.Context()
	require.NoError(t, q.Enqueue(ctx, task("1")))
	q.Close()

	require.ErrorIs(t, q.Enqueue(ctx, task("2")), ErrClosed)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err, "queued tasks drain after close")
	assert.Equal(t, "1", got.DocID)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrClosed)

	q.Close() // idempotent
}
