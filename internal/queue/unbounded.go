// Package queue provides an unbounded FIFO that never blocks its producers.
package queue

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Unbounded buffers pushed items and delivers them in order on Out.
// Push never blocks; Out is closed once the queue is closed and drained,
// or as soon as ctx is done.
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  deque.Deque[T]
	wake   chan struct{}
	out    chan T
	closed bool
}

func NewUnbounded[T any](ctx context.Context) *Unbounded[T] {
	q := &Unbounded[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go q.pump(ctx)
	return q
}

// Push enqueues v. It reports false when the queue is already closed.
func (q *Unbounded[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.PushBack(v)
	q.mu.Unlock()
	q.notify()
	return true
}

// Close stops accepting items; already queued items are still delivered.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *Unbounded[T]) Out() <-chan T { return q.out }

// Len is the number of items not yet handed to a reader.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Unbounded[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Unbounded[T]) pump(ctx context.Context) {
	defer func() {
		q.mu.Lock()
		q.closed = true
		q.items.Clear()
		q.mu.Unlock()
		close(q.out)
	}()
	for {
		q.mu.Lock()
		if q.items.Len() == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		v := q.items.Front()
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case q.out <- v:
		}

		q.mu.Lock()
		q.items.PopFront()
		q.mu.Unlock()
	}
}
