package intake

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

// Debouncer coalesces tasks per document. Each new task for a key restarts
// that key's window; when the window expires quietly the merged task is
// handed to the sink. Merging keeps the newest operation and the maximum
// modification time seen.
type Debouncer struct {
	window time.Duration
	sink   func(document.Task)

	mu      sync.Mutex
	pending map[document.Key]*pendingTask
	closed  bool
}

type pendingTask struct {
	task  document.Task
	timer *time.Timer
}

// NewDebouncer creates a debouncer delivering merged tasks to sink after
// window of quiet. The sink runs on timer goroutines and must not block for
// long.
func NewDebouncer(window time.Duration, sink func(document.Task)) *Debouncer {
	return &Debouncer{
		window:  window,
		sink:    sink,
		pending: make(map[document.Key]*pendingTask),
	}
}

// Offer submits a task for debouncing. Returns false after Close.
func (d *Debouncer) Offer(task document.Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	key := task.Key()
	if p, ok := d.pending[key]; ok {
		// Latest operation wins; the modification time only moves forward.
		if task.ModifiedAt.After(p.task.ModifiedAt) {
			p.task.ModifiedAt = task.ModifiedAt
		}
		p.task.Op = task.Op
		if task.SourceHint != "" {
			p.task.SourceHint = task.SourceHint
		}
		p.timer.Reset(d.window)
		return true
	}

	p := &pendingTask{task: task}
	p.timer = time.AfterFunc(d.window, func() { d.fire(key) })
	d.pending[key] = p
	return true
}

func (d *Debouncer) fire(key document.Key) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		d.sink(p.task)
	}
}

// Pending returns the number of documents currently in their quiet window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops all timers and flushes pending tasks to the sink immediately.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	flush := make([]document.Task, 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		flush = append(flush, p.task)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, task := range flush {
		d.sink(task)
	}
}
