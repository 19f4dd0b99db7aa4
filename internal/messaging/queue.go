package messaging

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO queue with non-blocking producers and a single
// blocking consumer. Producers may enqueue from any goroutine, including the
// consumer itself while it handles an item (recursive generation); such items
// land at the tail and preserve global FIFO order.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	pushed uint64
	popped uint64

	// signal carries at most one pending wakeup for the consumer.
	signal chan struct{}
}

// NewQueue allocates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  nil,
		head:   0,
		pushed: 0,
		popped: 0,
		signal: make(chan struct{}, 1),
	}
}

// Push appends an item to the tail. It never blocks.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.pushed++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the head item, blocking until one is available or
// ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}

		select {
		case <-ctx.Done():
			var zero T

			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}

// TryPop removes and returns the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		var zero T

		return zero, false
	}

	item := q.items[q.head]

	var zero T

	q.items[q.head] = zero // release the reference for GC
	q.head++
	q.popped++

	// Compact once the consumed prefix dominates, keeping memory bounded by
	// the live backlog.
	if q.head > len(q.items)/2 && q.head > 32 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}

	return item, true
}

// Len returns the number of unconsumed items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items) - q.head
}

// Pushed returns the total number of items ever enqueued.
func (q *Queue[T]) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pushed
}

// Popped returns the total number of items ever dequeued.
func (q *Queue[T]) Popped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.popped
}
