// Package ring provides a fixed-capacity ring buffer whose backing array is
// allocated once and never grows, shrinks or moves.
package ring

// Buffer is a bounded double-ended ring. The zero value has no capacity;
// use New.
type Buffer[T any] struct {
	slots []T
	head  int // index of the oldest element
	n     int
}

// New allocates a ring that holds exactly capacity elements.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{slots: make([]T, capacity)}
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int { return b.n }

// Full reports whether no slot is free.
func (b *Buffer[T]) Full() bool { return b.n == len(b.slots) }

// PushBack appends v at the tail. It returns false when the ring is full.
func (b *Buffer[T]) PushBack(v T) bool {
	if b.Full() {
		return false
	}
	b.slots[(b.head+b.n)%len(b.slots)] = v
	b.n++
	return true
}

// PushFront inserts v ahead of every stored element. It returns false when
// the ring is full.
func (b *Buffer[T]) PushFront(v T) bool {
	if b.Full() {
		return false
	}
	b.head = (b.head - 1 + len(b.slots)) % len(b.slots)
	b.slots[b.head] = v
	b.n++
	return true
}

// PopFront removes and returns the oldest element.
func (b *Buffer[T]) PopFront() (T, bool) {
	var zero T
	if b.n == 0 {
		return zero, false
	}
	v := b.slots[b.head]
	b.slots[b.head] = zero
	b.head = (b.head + 1) % len(b.slots)
	b.n--
	return v, true
}

// Reset drops every element, keeping the backing array.
func (b *Buffer[T]) Reset() {
	clear(b.slots)
	b.head = 0
	b.n = 0
}
