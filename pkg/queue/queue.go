package queue

import (
	"sync"
	"time"
)

// Item is a unit of work waiting for its next attempt.
type Item[T any] struct {
	ID         string
	Value      T
	RetryAt    time.Time
	RetryCount int
	MaxRetries int
}

// Exhausted reports whether another failure should drop the item.
func (i *Item[T]) Exhausted() bool {
	return i.RetryCount >= i.MaxRetries
}

type Queue[T any] struct {
	items  []*Item[T]
	mu     sync.Mutex
	signal chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]*Item[T], 0),
		signal: make(chan struct{}, 1),
	}
}

func (q *Queue[T]) Enqueue(item *Item[T]) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Signal fires (coalesced) whenever an item is enqueued.
func (q *Queue[T]) Signal() <-chan struct{} {
	return q.signal
}

// Dequeue removes and returns the first item due at now, or nil.
func (q *Queue[T]) Dequeue(now time.Time) *Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if !item.RetryAt.After(now) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return item
		}
	}
	return nil
}

// NextDue returns the earliest retry time in the queue.
func (q *Queue[T]) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next time.Time
	for i, item := range q.items {
		if i == 0 || item.RetryAt.Before(next) {
			next = item.RetryAt
		}
	}
	return next, len(q.items) > 0
}

func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetAll returns a copy of the queued items, due or not.
func (q *Queue[T]) GetAll() []*Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]*Item[T], len(q.items))
	copy(result, q.items)
	return result
}
