package queue

import "container/heap"

const UnlimitedCapacity = -1

// MutateFunc is invoked after queue length or capacity changes.
type MutateFunc func(length int, capacity int)

// TimedHooks defines callbacks for queue lifecycle events.
type TimedHooks[T any] struct {
	OnPush func(item T, at float64)
	OnPop  func(item T, at float64)
}

type timedEntry[T any] struct {
	item T
	at   float64
	seq  uint64
}

type timedHeap[T any] []timedEntry[T]

func (h timedHeap[T]) Len() int { return len(h) }

func (h timedHeap[T]) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h timedHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timedHeap[T]) Push(x any) { *h = append(*h, x.(timedEntry[T])) }

func (h *timedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	var zero timedEntry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return e
}

// TimedQueue orders items by due time. Items due at the same time come out in
// insertion order.
type TimedQueue[T any] struct {
	name     string
	capacity int
	items    timedHeap[T]
	nextSeq  uint64
	hooks    TimedHooks[T]
	mutate   MutateFunc
}

// NewTimedQueue constructs a timed queue with optional hooks and mutate callback.
func NewTimedQueue[T any](name string, capacity int, mutate MutateFunc, hooks TimedHooks[T]) *TimedQueue[T] {
	q := &TimedQueue[T]{
		name:     name,
		capacity: capacity,
		hooks:    hooks,
		mutate:   mutate,
	}
	q.notify()
	return q
}

// Name returns the queue name.
func (q *TimedQueue[T]) Name() string {
	if q == nil {
		return ""
	}
	return q.name
}

// Capacity returns current capacity (-1 for unlimited).
func (q *TimedQueue[T]) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// Len returns the number of queued items.
func (q *TimedQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// Push adds an item due at the given time. Returns false if capacity exceeded.
func (q *TimedQueue[T]) Push(item T, at float64) bool {
	if q == nil {
		return false
	}
	if q.capacity >= 0 && len(q.items) >= q.capacity {
		return false
	}
	heap.Push(&q.items, timedEntry[T]{item: item, at: at, seq: q.nextSeq})
	q.nextSeq++
	if q.hooks.OnPush != nil {
		q.hooks.OnPush(item, at)
	}
	q.notify()
	return true
}

// Peek returns the earliest item and its due time without removing it.
func (q *TimedQueue[T]) Peek() (T, float64, bool) {
	var zero T
	if q == nil || len(q.items) == 0 {
		return zero, 0, false
	}
	e := q.items[0]
	return e.item, e.at, true
}

// Pop removes and returns the earliest item.
func (q *TimedQueue[T]) Pop() (T, float64, bool) {
	var zero T
	if q == nil || len(q.items) == 0 {
		return zero, 0, false
	}
	e := heap.Pop(&q.items).(timedEntry[T])
	if q.hooks.OnPop != nil {
		q.hooks.OnPop(e.item, e.at)
	}
	q.notify()
	return e.item, e.at, true
}

// Clear drops every queued item and returns how many were removed.
func (q *TimedQueue[T]) Clear() int {
	if q == nil {
		return 0
	}
	n := len(q.items)
	q.items = nil
	q.notify()
	return n
}

func (q *TimedQueue[T]) notify() {
	if q == nil || q.mutate == nil {
		return
	}
	q.mutate(len(q.items), q.capacity)
}
