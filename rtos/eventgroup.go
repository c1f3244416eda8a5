package rtos

import (
	"context"
	"sync"
	"time"

	"github.com/utkarsh5026/rtos/internal/waitq"
)

// EventBitsMask covers the 24 usable event bits. Bits 24-31 are reserved
// and silently dropped by every operation.
const EventBitsMask uint32 = 0x00FFFFFF

// bitsWait is one blocked waiter's condition. result is filled in by the
// setter that satisfies it.
type bitsWait struct {
	mask   uint32
	all    bool
	clear  bool
	result uint32
}

func (b *bitsWait) satisfied(bits uint32) bool {
	if b.all {
		return bits&b.mask == b.mask
	}
	return bits&b.mask != 0
}

type eventState struct {
	mu      sync.Mutex
	bits    uint32
	deleted bool
	waiters waitq.Queue[*bitsWait]
}

// EventGroup is a 24-bit flag register for AND/OR rendezvous between
// Tasks. The zero value is not created.
type EventGroup struct {
	cb storage[eventState]
}

// NewEventGroup creates an EventGroup with a heap control block.
func NewEventGroup() *EventGroup { return newEventGroup(Dynamic) }

// NewStaticEventGroup creates an EventGroup with an inline control block.
func NewStaticEventGroup() *EventGroup { return newEventGroup(Static) }

func newEventGroup(a Allocation) *EventGroup {
	g := &EventGroup{cb: newStorage[eventState](a)}
	g.cb.acquire()
	return g
}

func (g *EventGroup) state() *eventState {
	if g == nil {
		return nil
	}
	return loadBlock(g.cb)
}

// Set ORs mask into the register and releases every waiter whose condition
// now holds. Waiters are served in priority order and a clearing waiter
// consumes its bits before the next one is looked at, so no bit is handed
// to two clearing waiters. Set returns the register as it stands when Set
// returns, after any clearing.
func (g *EventGroup) Set(mask uint32) uint32 {
	v, _ := g.set(mask)
	return v
}

func (g *EventGroup) set(mask uint32) (uint32, bool) {
	st := g.state()
	if st == nil {
		return 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return 0, false
	}
	st.bits |= mask & EventBitsMask

	woke := false
	for _, w := range st.waiters.Ordered() {
		cond := w.Value
		if !cond.satisfied(st.bits) {
			continue
		}
		cond.result = st.bits
		if cond.clear {
			st.bits &^= cond.mask
		}
		st.waiters.Remove(w)
		w.Wake()
		woke = true
	}
	return st.bits, woke
}

// Clear ANDs the complement of mask into the register and returns the
// value it had before.
func (g *EventGroup) Clear(mask uint32) uint32 {
	st := g.state()
	if st == nil {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return 0
	}
	prev := st.bits
	st.bits &^= mask & EventBitsMask
	return prev
}

// Get returns the register.
func (g *EventGroup) Get() uint32 {
	st := g.state()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bits
}

// Wait blocks until any of the 24 bits is set and returns the register.
// It clears nothing; the caller tests and clears what it is interested in.
func (g *EventGroup) Wait(ctx context.Context) uint32 {
	return g.WaitTimeout(ctx, Forever)
}

// WaitTimeout is Wait bounded by timeout. On timeout it returns the
// register as it was then, which is zero.
func (g *EventGroup) WaitTimeout(ctx context.Context, timeout time.Duration) uint32 {
	v, _ := g.waitBits(ctx, EventBitsMask, false, false, timeout)
	return v
}

// WaitBits is the general wait. It blocks until all (waitAll) or any of
// the bits in mask are set, optionally clearing exactly those bits on
// success, and returns the register value from the moment the condition
// held, before clearing. On timeout it returns the register without
// clearing anything; test the result against mask to tell the two apart.
// A mask with no usable bits returns immediately.
func (g *EventGroup) WaitBits(ctx context.Context, mask uint32, clearOnExit, waitAll bool, timeout time.Duration) uint32 {
	v, _ := g.waitBits(ctx, mask, clearOnExit, waitAll, timeout)
	return v
}

// WaitAllFlags blocks until every bit in mask is set, then clears exactly
// those bits. It is the AND-join.
func (g *EventGroup) WaitAllFlags(ctx context.Context, mask uint32) bool {
	return g.WaitAllFlagsTimeout(ctx, mask, Forever)
}

// WaitAllFlagsTimeout is WaitAllFlags bounded by timeout.
func (g *EventGroup) WaitAllFlagsTimeout(ctx context.Context, mask uint32, timeout time.Duration) bool {
	_, ok := g.waitBits(ctx, mask, true, true, timeout)
	return ok
}

// WaitAnyFlags blocks until at least one bit in mask is set, then clears
// the bits of mask that were set. It is the OR-join.
func (g *EventGroup) WaitAnyFlags(ctx context.Context, mask uint32) bool {
	return g.WaitAnyFlagsTimeout(ctx, mask, Forever)
}

// WaitAnyFlagsTimeout is WaitAnyFlags bounded by timeout.
func (g *EventGroup) WaitAnyFlagsTimeout(ctx context.Context, mask uint32, timeout time.Duration) bool {
	_, ok := g.waitBits(ctx, mask, true, false, timeout)
	return ok
}

func (g *EventGroup) waitBits(ctx context.Context, mask uint32, clearOnExit, waitAll bool, timeout time.Duration) (uint32, bool) {
	st := g.state()
	if st == nil || !checkpoint(ctx) {
		return 0, false
	}
	cond := &bitsWait{mask: mask & EventBitsMask, all: waitAll, clear: clearOnExit}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return 0, false
	}
	if cond.mask == 0 {
		return st.bits, false
	}
	if cond.satisfied(st.bits) {
		v := st.bits
		if cond.clear {
			st.bits &^= cond.mask
		}
		return v, true
	}

	if !park(ctx, &st.mu, &st.waiters, waitq.NewWaiter(priorityOf(ctx), cond), timeout) {
		return st.bits, false
	}
	return cond.result, true
}

// Allocation reports how the group's control block is held.
func (g *EventGroup) Allocation() Allocation {
	if g == nil || g.cb == nil {
		return Dynamic
	}
	return g.cb.allocation()
}

// Delete destroys the group. Blocked waiters return as timed out.
func (g *EventGroup) Delete() {
	st := g.state()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.deleted = true
	failAll(&st.waiters)
	st.mu.Unlock()

	g.cb.release()
}

// ISR returns the interrupt-context entry points.
func (g *EventGroup) ISR() EventGroupISR { return EventGroupISR{g: g} }

// EventGroupISR is the interrupt-safe view of an EventGroup. Its methods
// hold the group's lock only for the bounded update itself.
type EventGroupISR struct {
	g *EventGroup
}

// Set is EventGroup.Set from an interrupt handler. Releasing a waiter
// requests a yield at handler exit.
func (v EventGroupISR) Set(irq *Interrupt, mask uint32) uint32 {
	bits, woke := v.g.set(mask)
	if woke {
		irq.requestYield()
	}
	return bits
}

// Clear is EventGroup.Clear from an interrupt handler.
func (v EventGroupISR) Clear(_ *Interrupt, mask uint32) uint32 { return v.g.Clear(mask) }

// Get is EventGroup.Get from an interrupt handler.
func (v EventGroupISR) Get(*Interrupt) uint32 { return v.g.Get() }
