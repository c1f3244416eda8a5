package rtos

import (
	"context"
	"sync"
	"time"

	"github.com/utkarsh5026/rtos/internal/waitq"
)

type mutexState struct {
	mu        sync.Mutex
	recursive bool
	owner     *identity
	depth     int
	deleted   bool
	waiters   waitq.Queue[*identity]
}

// mutexCore implements both lock flavours.
type mutexCore struct {
	cb storage[mutexState]
}

func newMutexCore(a Allocation, recursive bool) mutexCore {
	c := mutexCore{cb: newStorage[mutexState](a)}
	c.cb.acquire().recursive = recursive
	return c
}

func (c *mutexCore) take(ctx context.Context, timeout time.Duration) bool {
	st := loadBlock(c.cb)
	if st == nil || !checkpoint(ctx) {
		return false
	}
	me := callerOf(ctx)
	if me == anonymous {
		debugLog("mutex take without an owner identity rejected")
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false
	}
	switch {
	case st.owner == nil:
		st.owner, st.depth = me, 1
		return true
	case st.recursive && st.owner == me:
		st.depth++
		return true
	}
	// A simple mutex re-taken by its owner lands here too and waits out
	// its timeout.
	return park(ctx, &st.mu, &st.waiters, waitq.NewWaiter(priorityOf(ctx), me), timeout)
}

func (c *mutexCore) give(ctx context.Context) bool {
	st := loadBlock(c.cb)
	if st == nil {
		return false
	}
	me := callerOf(ctx)
	if me == anonymous {
		debugLog("mutex give without an owner identity rejected")
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false
	}
	if st.owner != me {
		debugLog("mutex give by %q rejected: not the owner", me.name)
		return false
	}

	st.depth--
	if st.depth > 0 {
		return true
	}

	if w := st.waiters.Pop(); w != nil {
		st.owner, st.depth = w.Value, 1
		w.Wake()
		return true
	}
	st.owner = nil
	return true
}

func (c *mutexCore) holder() (string, int) {
	st := loadBlock(c.cb)
	if st == nil {
		return "", 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.owner == nil {
		return "", 0
	}
	return st.owner.name, st.depth
}

func (c *mutexCore) delete() {
	st := loadBlock(c.cb)
	if st == nil {
		return
	}

	st.mu.Lock()
	st.deleted = true
	st.owner = nil
	failAll(&st.waiters)
	st.mu.Unlock()

	c.cb.release()
}

// Mutex is a non-recursive lock owned by the caller that took it. Only the
// owner may Give it back, and Give without a matching Take fails. There is
// no try-lock: an owner that takes its own Mutex again blocks until its
// timeout expires. The zero value is not created.
//
// Ownership needs an identity: the context of a Task, or one returned by
// WithOwner. Take and Give with a context that has neither fail.
type Mutex struct {
	core mutexCore
}

// NewMutex creates a Mutex with a heap control block.
func NewMutex() *Mutex { return &Mutex{core: newMutexCore(Dynamic, false)} }

// NewStaticMutex creates a Mutex with an inline control block.
func NewStaticMutex() *Mutex { return &Mutex{core: newMutexCore(Static, false)} }

// Take blocks until the caller owns the lock.
func (m *Mutex) Take(ctx context.Context) bool { return m.TakeTimeout(ctx, Forever) }

// TakeTimeout is Take bounded by timeout.
func (m *Mutex) TakeTimeout(ctx context.Context, timeout time.Duration) bool {
	if m == nil {
		return false
	}
	return m.core.take(ctx, timeout)
}

// Give releases the lock, handing it to the highest-priority waiter. It
// reports false, leaving the lock untouched, when the caller is not the
// owner. Misuse is the caller's responsibility; it is not repaired.
func (m *Mutex) Give(ctx context.Context) bool {
	if m == nil {
		return false
	}
	return m.core.give(ctx)
}

// Holder returns the name of the current owner, or "" when the lock is free.
func (m *Mutex) Holder() string {
	if m == nil {
		return ""
	}
	name, _ := m.core.holder()
	return name
}

// Delete destroys the lock. Blocked takers return false.
func (m *Mutex) Delete() {
	if m != nil {
		m.core.delete()
	}
}

// RecursiveMutex is a lock its owner may take repeatedly. It is released
// to other callers only after as many Gives as Takes. Like Mutex, it
// refuses callers without an identity.
type RecursiveMutex struct {
	core mutexCore
}

// NewRecursiveMutex creates a RecursiveMutex with a heap control block.
func NewRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{core: newMutexCore(Dynamic, true)}
}

// NewStaticRecursiveMutex creates a RecursiveMutex with an inline control block.
func NewStaticRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{core: newMutexCore(Static, true)}
}

// Take blocks until the caller owns the lock, or nests one level deeper if
// it already does.
func (m *RecursiveMutex) Take(ctx context.Context) bool { return m.TakeTimeout(ctx, Forever) }

// TakeTimeout is Take bounded by timeout.
func (m *RecursiveMutex) TakeTimeout(ctx context.Context, timeout time.Duration) bool {
	if m == nil {
		return false
	}
	return m.core.take(ctx, timeout)
}

// Give undoes one Take. It reports false when the caller is not the owner.
func (m *RecursiveMutex) Give(ctx context.Context) bool {
	if m == nil {
		return false
	}
	return m.core.give(ctx)
}

// Depth returns how many Takes the current owner holds.
func (m *RecursiveMutex) Depth() int {
	if m == nil {
		return 0
	}
	_, depth := m.core.holder()
	return depth
}

// Holder returns the name of the current owner, or "" when the lock is free.
func (m *RecursiveMutex) Holder() string {
	if m == nil {
		return ""
	}
	name, _ := m.core.holder()
	return name
}

// Delete destroys the lock. Blocked takers return false.
func (m *RecursiveMutex) Delete() {
	if m != nil {
		m.core.delete()
	}
}
