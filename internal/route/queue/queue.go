// Package queue provides the unbounded multi-producer, multi-consumer FIFO
// queue that carries messages from senders to event loops.
//
// Push never blocks and never fails. Consumers compete for items: each item is
// received by at most one consumer. Once the queue is closed every receive
// fails with ErrClosed, even if items remain; later pushes are still accepted
// but nothing drains them.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by receive operations once the queue is closed.
var ErrClosed = errors.New("queue is closed")

// compactThreshold is the number of consumed slots after which the backing
// slice is compacted.
const compactThreshold = 1024

// Queue is an unbounded FIFO queue safe for concurrent use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	// ready holds a token while items may be available.
	ready chan struct{}
	// done is closed by Close.
	done chan struct{}
}

// New creates an empty open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends an item to the tail of the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// signal leaves a readiness token for one waiting consumer.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes the head item. The caller must hold q.mu.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// TryRecv removes the head item without waiting.
// ok is false if the queue is empty.
func (q *Queue[T]) TryRecv() (item T, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return item, false, ErrClosed
	}
	item, ok = q.pop()
	if ok && q.head < len(q.items) {
		// More items remain; make sure another consumer wakes up.
		q.signal()
	}
	return item, ok, nil
}

// Recv removes the head item, blocking until one is available or the queue
// is closed.
func (q *Queue[T]) Recv() (T, error) {
	return q.RecvContext(context.Background())
}

// RecvContext is like Recv but also returns when ctx is done.
func (q *Queue[T]) RecvContext(ctx context.Context) (T, error) {
	for {
		item, ok, err := q.TryRecv()
		if err != nil || ok {
			return item, err
		}

		select {
		case <-q.ready:
		case <-q.done:
			var zero T
			return zero, ErrClosed
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close closes the queue and wakes every waiting consumer.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Closed returns true once Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Done returns a channel that is closed when the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of items waiting in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
