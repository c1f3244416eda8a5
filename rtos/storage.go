package rtos

import "sync/atomic"

// Allocation is how a primitive keeps its control block.
type Allocation uint8

const (
	// Dynamic allocates the control block on create and drops it on Delete.
	Dynamic Allocation = iota
	// Static reserves the control block once, inline in the object, and
	// keeps it for the object's whole lifetime.
	Static
)

func (a Allocation) String() string {
	if a == Static {
		return "static"
	}
	return "dynamic"
}

// storage holds a primitive's control block. A nil or released storage is
// the "not created" state and every operation on it is a no-op.
type storage[T any] interface {
	// acquire makes the block live and returns it, or nil if it already is.
	acquire() *T
	// load returns the live block, or nil.
	load() *T
	// release ends the block's life. It reports false if it was not live.
	release() bool
	allocation() Allocation
}

func newStorage[T any](a Allocation) storage[T] {
	if a == Static {
		return &staticBlock[T]{}
	}
	return &dynamicBlock[T]{}
}

// dynamicBlock allocates a fresh control block on every acquire.
type dynamicBlock[T any] struct {
	p atomic.Pointer[T]
}

func (b *dynamicBlock[T]) acquire() *T {
	p := new(T)
	if !b.p.CompareAndSwap(nil, p) {
		return nil
	}
	return p
}

func (b *dynamicBlock[T]) load() *T { return b.p.Load() }

func (b *dynamicBlock[T]) release() bool { return b.p.Swap(nil) != nil }

func (*dynamicBlock[T]) allocation() Allocation { return Dynamic }

// staticBlock embeds the control block. acquire hands out the same memory
// every time, so anything the previous life left in it is retained.
type staticBlock[T any] struct {
	live  atomic.Bool
	state T
}

func (b *staticBlock[T]) acquire() *T {
	if !b.live.CompareAndSwap(false, true) {
		return nil
	}
	return &b.state
}

func (b *staticBlock[T]) load() *T {
	if !b.live.Load() {
		return nil
	}
	return &b.state
}

func (b *staticBlock[T]) release() bool { return b.live.Swap(false) }

func (*staticBlock[T]) allocation() Allocation { return Static }

// loadBlock is load with a nil check on the holder itself, so zero-valued
// and nil primitives are safe to call.
func loadBlock[T any](s storage[T]) *T {
	if s == nil {
		return nil
	}
	return s.load()
}
