// Package waitq implements the priority-ordered wait lists that blocking
// primitives park their callers on.
//
// A Queue is not safe for concurrent use: every primitive guards its wait
// lists with the same lock that protects its state, so that registering a
// waiter, granting it, and removing it on timeout are all atomic with
// respect to the primitive's state.
package waitq

import (
	"cmp"
	"container/heap"
	"slices"
)

// Waiter is one parked caller. Value carries the primitive-specific
// request and, once granted, the result handed over by the waker.
type Waiter[T any] struct {
	Value T

	priority int
	seq      uint64
	index    int // heap index, -1 when not queued
	failed   bool
	ready    chan struct{}
}

// NewWaiter creates a waiter with the given priority (higher is served first).
func NewWaiter[T any](priority int, value T) *Waiter[T] {
	return &Waiter[T]{
		Value:    value,
		priority: priority,
		index:    -1,
		ready:    make(chan struct{}, 1),
	}
}

// Queued reports whether the waiter is still on a wait list.
// A waiter that is no longer queued has been granted.
func (w *Waiter[T]) Queued() bool { return w.index >= 0 }

// Ready delivers one signal after the waiter has been granted.
func (w *Waiter[T]) Ready() <-chan struct{} { return w.ready }

// Wake signals the waiter without blocking.
func (w *Waiter[T]) Wake() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// Fail wakes a waiter that was taken off its queue without being granted,
// for example because the primitive it waited on was deleted.
func (w *Waiter[T]) Fail() {
	w.failed = true
	w.Wake()
}

// Failed reports whether the waiter was released by Fail.
func (w *Waiter[T]) Failed() bool { return w.failed }

// Queue is a max-heap of waiters ordered by priority, FIFO among equals.
type Queue[T any] struct {
	h   waiterHeap[T]
	seq uint64
}

// Len returns the number of queued waiters.
func (q *Queue[T]) Len() int { return len(q.h) }

// Push queues w.
func (q *Queue[T]) Push(w *Waiter[T]) {
	q.seq++
	w.seq = q.seq
	heap.Push(&q.h, w)
}

// Pop removes and returns the highest-priority waiter, or nil.
func (q *Queue[T]) Pop() *Waiter[T] {
	if len(q.h) == 0 {
		return nil
	}
	w, _ := heap.Pop(&q.h).(*Waiter[T])
	return w
}

// Remove takes w off the queue. It returns false if w was not queued.
func (q *Queue[T]) Remove(w *Waiter[T]) bool {
	if w.index < 0 || w.index >= len(q.h) || q.h[w.index] != w {
		return false
	}
	heap.Remove(&q.h, w.index)
	return true
}

// Ordered returns the queued waiters in service order without removing them.
func (q *Queue[T]) Ordered() []*Waiter[T] {
	if len(q.h) == 0 {
		return nil
	}
	out := make([]*Waiter[T], len(q.h))
	copy(out, q.h)
	slices.SortFunc(out, func(a, b *Waiter[T]) int {
		if a.priority != b.priority {
			return cmp.Compare(b.priority, a.priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

// Clear removes every waiter and returns them in service order.
func (q *Queue[T]) Clear() []*Waiter[T] {
	out := make([]*Waiter[T], 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, q.Pop())
	}
	return out
}

// waiterHeap implements heap.Interface over waiters.
type waiterHeap[T any] []*Waiter[T]

func (h waiterHeap[T]) Len() int { return len(h) }

// Less orders higher priority first, then earlier arrival.
func (h waiterHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap[T]) Push(x any) {
	w, ok := x.(*Waiter[T])
	if !ok {
		panic("waitq.Push: invalid type assertion")
	}
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap[T]) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
