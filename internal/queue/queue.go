// Package queue provides the bounded task queue between discovery and the
// processing workers. A full queue applies backpressure: producers block
// rather than dropping tasks or growing without bound.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
)

// ErrClosed is returned when enqueueing to or dequeueing from a closed queue.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded FIFO of document tasks. Safe for concurrent use.
type Queue struct {
	ch        chan document.Task
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding at most capacity tasks.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan document.Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds a task, blocking while the queue is full. It returns the
// context error if ctx is done first, or ErrClosed after Close.
func (q *Queue) Enqueue(ctx context.Context, task document.Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- task:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest task, blocking while the queue is empty.
// After Close, remaining tasks drain before ErrClosed is returned.
func (q *Queue) Dequeue(ctx context.Context) (document.Task, error) {
	// Drain preference: queued tasks win over shutdown.
	select {
	case task := <-q.ch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return task, nil
	default:
	}

	select {
	case task := <-q.ch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return task, nil
	case <-q.done:
		return document.Task{}, ErrClosed
	case <-ctx.Done():
		return document.Task{}, ctx.Err()
	}
}

// Len returns the number of tasks currently waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting new tasks. Queued tasks remain dequeueable.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
