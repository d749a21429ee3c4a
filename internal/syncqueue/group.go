package syncqueue

import (
	"context"
	"sync"
)

// Group holds one Queue per key.
type Group struct {
	mu     sync.Mutex
	queues map[string]*Queue
	opts   []Option
	closed bool
}

// NewGroup creates a group whose queues are built with opts.
func NewGroup(opts ...Option) *Group {
	return &Group{
		queues: make(map[string]*Queue),
		opts:   opts,
	}
}

// Push appends task to the queue for key, creating the queue if needed.
// It returns false once the group is closed.
func (g *Group) Push(key string, task Task) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	q, ok := g.queues[key]
	if !ok {
		q = New(g.opts...)
		g.queues[key] = q
	}
	g.mu.Unlock()

	return q.Push(task)
}

// Drain waits for the work queued under key. Keys without a queue are
// already drained.
func (g *Group) Drain(ctx context.Context, key string) error {
	g.mu.Lock()
	q, ok := g.queues[key]
	closed := g.closed
	g.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return nil
	}
	return q.Drain(ctx)
}

// DrainAll waits for every queue in the group.
func (g *Group) DrainAll(ctx context.Context) error {
	g.mu.Lock()
	queues := make([]*Queue, 0, len(g.queues))
	for _, q := range g.queues {
		queues = append(queues, q)
	}
	g.mu.Unlock()

	for _, q := range queues {
		if err := q.Drain(ctx); err != nil && err != ErrClosed {
			return err
		}
	}
	return nil
}

// Remove closes and forgets the queue for key, dropping its pending tasks.
func (g *Group) Remove(key string) int {
	g.mu.Lock()
	q, ok := g.queues[key]
	delete(g.queues, key)
	g.mu.Unlock()

	if !ok {
		return 0
	}
	return q.Close()
}

// Close closes every queue and rejects further work.
// It returns the total number of dropped tasks.
func (g *Group) Close() int {
	g.mu.Lock()
	queues := g.queues
	g.queues = make(map[string]*Queue)
	g.closed = true
	g.mu.Unlock()

	dropped := 0
	for _, q := range queues {
		dropped += q.Close()
	}
	return dropped
}

// size returns the number of live queues.
func (g *Group) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queues)
}

// pending returns the number of waiting tasks for key.
func (g *Group) pending(key string) int {
	g.mu.Lock()
	q, ok := g.queues[key]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	return q.Len()
}
