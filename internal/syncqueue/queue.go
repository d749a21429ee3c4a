// Package syncqueue provides single-worker FIFO task queues.
//
// A Queue runs its tasks one at a time, in the order they were pushed.
// The worker goroutine is started on demand and exits when the queue is
// empty, so idle queues cost nothing. Closing a queue drops every task that
// has not started yet; a task that is already running is left to finish.
//
// A Group keeps one Queue per key. Work for different keys runs
// concurrently; work for the same key never does.
package syncqueue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when work is submitted to, or awaited on, a closed queue.
var ErrClosed = errors.New("sync queue closed")

// Task is a unit of work run by a queue's worker.
type Task func()

// PanicHandler is called when a task panics.
type PanicHandler func(recovered any, stack []byte)

// Option configures a Queue.
type Option func(*Queue)

// WithPanicHandler sets the handler called for panicking tasks.
// Without one, panics are swallowed and counted.
func WithPanicHandler(h PanicHandler) Option {
	return func(q *Queue) {
		q.panicHandler = h
	}
}

// Queue is a FIFO of tasks drained by at most one goroutine.
type Queue struct {
	mu      sync.Mutex
	tasks   []Task
	running bool
	closed  bool
	done    chan struct{}

	panicHandler PanicHandler

	enqueued    atomic.Uint64
	processed   atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a task. It returns false if the queue is closed.
func (q *Queue) Push(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}

	q.tasks = append(q.tasks, task)
	q.enqueued.Add(1)

	if !q.running {
		q.running = true
		go q.run()
	}
	return true
}

// Drain waits until every task pushed before the call has finished.
// It returns ErrClosed if the queue is closed before that happens.
func (q *Queue) Drain(ctx context.Context) error {
	barrier := make(chan struct{})
	if !q.Push(func() { close(barrier) }) {
		return ErrClosed
	}

	select {
	case <-barrier:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops all pending tasks and rejects new ones.
// It returns the number of tasks dropped.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	close(q.done)

	n := len(q.tasks)
	q.tasks = nil
	q.dropped.Add(uint64(n))
	return n
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if q.closed || len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.execute(task)
	}
}

func (q *Queue) execute(task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			if q.panicHandler != nil {
				q.panicHandler(r, debug.Stack())
			}
		}
		q.processed.Add(1)
		q.totalTimeNs.Add(time.Since(start).Nanoseconds())
	}()

	task()
}

// Stats contains counters for a queue.
type Stats struct {
	// Enqueued is the number of tasks accepted.
	Enqueued uint64

	// Processed is the number of tasks that ran, including panicking ones.
	Processed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Dropped counts tasks rejected after close or discarded by Close.
	Dropped uint64

	// Pending is the number of tasks waiting to run.
	Pending int

	// TotalDuration is the cumulative time spent running tasks.
	TotalDuration time.Duration
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:      q.enqueued.Load(),
		Processed:     q.processed.Load(),
		Panicked:      q.panicked.Load(),
		Dropped:       q.dropped.Load(),
		Pending:       q.Len(),
		TotalDuration: time.Duration(q.totalTimeNs.Load()),
	}
}
