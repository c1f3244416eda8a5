package rtos

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// TimerFunc is a Timer callback. It runs on the timer service Task and
// must not block: hand real work to a Task with Task.Notify or a
// non-blocking Queue send.
type TimerFunc func(t *Timer)

type timerState struct {
	mu         sync.Mutex
	timer      *Timer
	period     Tick
	autoReload bool
	fn         TimerFunc
	id         any
	active     bool
	deleted    bool
	starts     int    // Start commands queued but not yet applied
	fired      uint64 // one-shot expiries, so a failed Start can tell it was overtaken

	// owned by the timer service
	expiry Tick
	index  int
}

// Timer is a software timer whose callback is dispatched by the Kernel's
// timer service Task. It is dormant after Attach and active from Start
// until Stop, or until a one-shot timer fires. The zero value is not
// created.
type Timer struct {
	k    *Kernel
	name string
	cb   storage[timerState]
}

// NewTimer creates a dormant Timer with a heap control block. period must
// be at least one tick.
func (k *Kernel) NewTimer(name string, period time.Duration) (*Timer, error) {
	return k.newTimer(Dynamic, name, period)
}

// NewStaticTimer creates a dormant Timer with an inline control block.
func (k *Kernel) NewStaticTimer(name string, period time.Duration) (*Timer, error) {
	return k.newTimer(Static, name, period)
}

func (k *Kernel) newTimer(a Allocation, name string, period time.Duration) (*Timer, error) {
	ticks := ToTicks(period)
	if ticks == 0 {
		return nil, ErrInvalidPeriod
	}

	t := &Timer{k: k, name: name, cb: newStorage[timerState](a)}
	st := t.cb.acquire()
	st.timer = t
	st.period = ticks
	st.index = -1
	return t, nil
}

func (t *Timer) state() *timerState {
	if t == nil || t.k == nil {
		return nil
	}
	return loadBlock(t.cb)
}

// Attach binds the callback. The timer stays dormant until started. Attach
// reports false if a callback is already bound.
func (t *Timer) Attach(fn TimerFunc, autoReload bool) bool {
	st := t.state()
	if st == nil || fn == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted || st.fn != nil {
		return false
	}
	st.fn = fn
	st.autoReload = autoReload
	return true
}

// Start activates the timer so it fires one period from now. Starting an
// active timer re-anchors it like Reset. The command is queued to the timer
// service and Start blocks while that queue is full.
func (t *Timer) Start(ctx context.Context) bool { return t.post(ctx, nil, opStart, 0) }

// Reset re-anchors an active timer to one period from now instead of
// adding another firing. A dormant timer is started.
func (t *Timer) Reset(ctx context.Context) bool { return t.post(ctx, nil, opStart, 0) }

// Stop makes the timer dormant.
func (t *Timer) Stop(ctx context.Context) bool { return t.post(ctx, nil, opStop, 0) }

// SetPeriod changes the period. An active timer is re-anchored to the new
// period from now; a dormant timer stays dormant and uses the new period
// when started.
func (t *Timer) SetPeriod(ctx context.Context, period time.Duration) bool {
	ticks := ToTicks(period)
	if ticks == 0 {
		return false
	}
	return t.post(ctx, nil, opSetPeriod, ticks)
}

// post applies the state change a command implies and queues the command.
// A nil irq means task context. Once the kernel is shutting down every
// command fails.
func (t *Timer) post(ctx context.Context, irq *Interrupt, op timerOp, period Tick) bool {
	st := t.state()
	if st == nil || t.k.closing() {
		return false
	}

	st.mu.Lock()
	if st.deleted || st.fn == nil {
		st.mu.Unlock()
		return false
	}
	wasActive, oldPeriod, fired := st.active, st.period, st.fired
	switch op {
	case opStart:
		st.active = true
		st.starts++
	case opStop:
		st.active = false
	case opSetPeriod:
		st.period = period
	}
	st.mu.Unlock()

	cmd := timerCommand{op: op, st: st, at: t.k.Now(), period: period}
	if t.k.timers.send(ctx, irq, cmd) {
		return true
	}

	st.mu.Lock()
	st.period = oldPeriod
	switch {
	case op != opStart:
		st.active = wasActive
	case st.fired != fired:
		// the timer expired while this Start was in flight
		st.starts--
		st.active = st.starts > 0
	default:
		st.starts--
		st.active = wasActive
	}
	st.mu.Unlock()
	return false
}

// Period returns the timer's period.
func (t *Timer) Period() time.Duration {
	st := t.state()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.period.Duration()
}

// IsActive reports whether the timer is counting down.
func (t *Timer) IsActive() bool {
	st := t.state()
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// ID returns the timer's identity token. It defaults to the timer itself.
func (t *Timer) ID() any {
	st := t.state()
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.id == nil {
		return t
	}
	return st.id
}

// SetID replaces the identity token. id must be comparable.
func (t *Timer) SetID(id any) {
	st := t.state()
	if st == nil {
		return
	}
	st.mu.Lock()
	st.id = id
	st.mu.Unlock()
}

// VerifyID reports whether fired carries this timer's identity token. A
// callback shared between several timers uses it to tell them apart.
func (t *Timer) VerifyID(fired *Timer) bool {
	a, b := t.ID(), fired.ID()
	if a == nil || b == nil {
		return false
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

// Allocation reports how the timer's control block is held.
func (t *Timer) Allocation() Allocation {
	if t == nil || t.cb == nil {
		return Dynamic
	}
	return t.cb.allocation()
}

// Delete stops the timer and destroys it. It does not wait for the timer
// service once the kernel is shutting down.
func (t *Timer) Delete(ctx context.Context) {
	st := t.state()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.deleted = true
	st.active = false
	st.mu.Unlock()

	t.cb.release()
	if !t.k.closing() {
		t.k.timers.send(ctx, nil, timerCommand{op: opDelete, st: st})
	}
}

// ISR returns the interrupt-context entry points.
func (t *Timer) ISR() TimerISR { return TimerISR{t: t} }

// TimerISR is the interrupt-safe view of a Timer. Its commands fail
// instead of blocking when the timer service queue is full.
type TimerISR struct {
	t *Timer
}

// Start is Timer.Start from an interrupt handler.
func (v TimerISR) Start(irq *Interrupt) bool {
	return v.t.post(context.Background(), irq, opStart, 0)
}

// Reset is Timer.Reset from an interrupt handler.
func (v TimerISR) Reset(irq *Interrupt) bool {
	return v.t.post(context.Background(), irq, opStart, 0)
}

// Stop is Timer.Stop from an interrupt handler.
func (v TimerISR) Stop(irq *Interrupt) bool {
	return v.t.post(context.Background(), irq, opStop, 0)
}

// SetPeriod is Timer.SetPeriod from an interrupt handler.
func (v TimerISR) SetPeriod(irq *Interrupt, period time.Duration) bool {
	ticks := ToTicks(period)
	if ticks == 0 {
		return false
	}
	return v.t.post(context.Background(), irq, opSetPeriod, ticks)
}
