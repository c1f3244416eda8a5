package rtos

import (
	"context"
	"sync"
	"time"

	"github.com/utkarsh5026/rtos/internal/waitq"
)

type semState struct {
	mu      sync.Mutex
	count   int
	max     int
	deleted bool
	waiters waitq.Queue[struct{}]
}

// Semaphore is a counting semaphore with count in [0, Max]. A binary
// semaphore is the Max == 1 case. The zero value is not created and every
// operation on it fails.
type Semaphore struct {
	cb storage[semState]
}

// NewSemaphore creates a counting semaphore with a heap control block.
func NewSemaphore(maxCount, initial int) (*Semaphore, error) {
	return newSemaphore(Dynamic, maxCount, initial)
}

// NewStaticSemaphore creates a counting semaphore whose control block is
// kept inline for the semaphore's lifetime.
func NewStaticSemaphore(maxCount, initial int) (*Semaphore, error) {
	return newSemaphore(Static, maxCount, initial)
}

// NewBinarySemaphore creates an empty binary semaphore: the first Take
// blocks until someone Gives.
func NewBinarySemaphore() *Semaphore {
	s, _ := newSemaphore(Dynamic, 1, 0)
	return s
}

// NewStaticBinarySemaphore is NewBinarySemaphore with static storage.
func NewStaticBinarySemaphore() *Semaphore {
	s, _ := newSemaphore(Static, 1, 0)
	return s
}

func newSemaphore(a Allocation, maxCount, initial int) (*Semaphore, error) {
	if maxCount < 1 {
		return nil, ErrInvalidMax
	}
	if initial < 0 || initial > maxCount {
		return nil, ErrInvalidInitial
	}

	s := &Semaphore{cb: newStorage[semState](a)}
	st := s.cb.acquire()
	st.count = initial
	st.max = maxCount
	return s, nil
}

func (s *Semaphore) state() *semState {
	if s == nil {
		return nil
	}
	return loadBlock(s.cb)
}

// Take decrements the count, blocking until it is positive.
func (s *Semaphore) Take(ctx context.Context) bool {
	return s.TakeTimeout(ctx, Forever)
}

// TakeTimeout is Take bounded by timeout. It reports false if no unit was
// obtained in time.
func (s *Semaphore) TakeTimeout(ctx context.Context, timeout time.Duration) bool {
	st := s.state()
	if st == nil || !checkpoint(ctx) {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false
	}
	if st.count > 0 {
		st.count--
		return true
	}
	return park(ctx, &st.mu, &st.waiters, waitq.NewWaiter(priorityOf(ctx), struct{}{}), timeout)
}

// Give returns one unit. A blocked taker receives it directly; otherwise
// the count goes up. Give reports false, leaving the count unchanged, when
// the count is already at Max.
func (s *Semaphore) Give() bool {
	ok, _ := s.give()
	return ok
}

func (s *Semaphore) give() (ok, woke bool) {
	st := s.state()
	if st == nil {
		return false, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false, false
	}
	if w := st.waiters.Pop(); w != nil {
		w.Wake()
		return true, true
	}
	if st.count >= st.max {
		return false, false
	}
	st.count++
	return true, false
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	st := s.state()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.count
}

// Max returns the maximum count, or 0 if the semaphore was not created.
func (s *Semaphore) Max() int {
	st := s.state()
	if st == nil {
		return 0
	}
	return st.max
}

// Allocation reports how the semaphore's control block is held.
func (s *Semaphore) Allocation() Allocation {
	if s == nil || s.cb == nil {
		return Dynamic
	}
	return s.cb.allocation()
}

// Delete destroys the semaphore. Blocked takers return false.
func (s *Semaphore) Delete() {
	st := s.state()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.deleted = true
	failAll(&st.waiters)
	st.mu.Unlock()

	s.cb.release()
}

// ISR returns the interrupt-context entry points.
func (s *Semaphore) ISR() SemaphoreISR { return SemaphoreISR{s: s} }

// SemaphoreISR is the interrupt-safe view of a Semaphore. Its methods never
// block.
type SemaphoreISR struct {
	s *Semaphore
}

// Give is Semaphore.Give from an interrupt handler. Waking a taker requests
// a yield at handler exit.
func (v SemaphoreISR) Give(irq *Interrupt) bool {
	ok, woke := v.s.give()
	if woke {
		irq.requestYield()
	}
	return ok
}

// Take decrements the count if it is positive.
func (v SemaphoreISR) Take(*Interrupt) bool {
	st := v.s.state()
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted || st.count == 0 {
		return false
	}
	st.count--
	return true
}
