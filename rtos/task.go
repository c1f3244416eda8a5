package rtos

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/rtos/internal/cpu"
)

// TaskFunc is a Task entry point. It normally loops until ctx is done;
// returning ends the Task.
type TaskFunc func(ctx context.Context, arg any)

// TaskState is where a Task is in its lifecycle.
type TaskState int32

const (
	Unattached TaskState = iota
	Running
	Suspended
	Deleted
)

func (s TaskState) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Deleted:
		return "deleted"
	default:
		return "unattached"
	}
}

// Core selects the processor a Task is pinned to.
type Core int

const (
	AnyCore Core = -1
	CoreA   Core = 0
	CoreB   Core = 1
)

func (c Core) String() string {
	switch c {
	case CoreA:
		return "A"
	case CoreB:
		return "B"
	default:
		return "any"
	}
}

// NotifyAction is how a notification value combines with the slot.
type NotifyAction int

const (
	// NotifySetBits ORs the value into the slot.
	NotifySetBits NotifyAction = iota
	// NotifyIncrement adds one to the slot and ignores the value.
	NotifyIncrement
	// NotifyOverwrite replaces the slot.
	NotifyOverwrite
	// NotifyNoOverwrite replaces the slot only if no notification is pending.
	NotifyNoOverwrite
)

const (
	// DefaultStackSize is the stack budget of a Task created without WithStackSize.
	DefaultStackSize = 4096

	// stackFill marks stack bytes that were never touched.
	stackFill byte = 0xA5
)

// taskRun is the control block of one attached life of a Task.
type taskRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	arg     any
	done    chan struct{}
	stack   []byte
	started atomic.Bool

	// notification slot
	nmu     sync.Mutex
	value   uint32
	pending bool
	waiting bool
	signal  chan struct{}

	smu       sync.Mutex
	suspended bool
	resumed   chan struct{}

	blocked atomic.Bool
	abort   chan struct{}

	// only touched by the Task itself
	lastWake time.Time
}

// Task is a schedulable unit of execution backed by a goroutine, with its
// own 32-bit notification slot. Every operation on a Task that is not
// attached is a no-op returning false or zero.
type Task struct {
	k         *Kernel
	name      string
	core      Core
	stackSize int
	priority  atomic.Int64
	state     atomic.Int32
	bound     atomic.Int32 // OS core the goroutine is pinned to, -1 when unpinned

	mu    sync.Mutex // serialises Attach and Delete
	cb    storage[taskRun]
	last  *taskRun
	arena []byte // static tasks only
}

// NewTask creates an unattached Task whose control block and stack are
// allocated on every Attach and dropped when the Task ends.
func (k *Kernel) NewTask(name string, opts ...TaskOption) *Task {
	return k.newTask(Dynamic, name, opts)
}

// NewStaticTask creates an unattached Task whose control block and stack
// of stackSize bytes are reserved now and reused by every Attach.
func (k *Kernel) NewStaticTask(name string, stackSize int, opts ...TaskOption) *Task {
	if stackSize > 0 {
		opts = append(opts, WithStackSize(stackSize))
	}
	return k.newTask(Static, name, opts)
}

func (k *Kernel) newTask(a Allocation, name string, opts []TaskOption) *Task {
	cfg := taskConfig{
		priority:  1,
		stackSize: DefaultStackSize,
		core:      AnyCore,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Task{
		k:         k,
		name:      name,
		core:      cfg.core,
		stackSize: cfg.stackSize,
		cb:        newStorage[taskRun](a),
	}
	t.priority.Store(int64(cfg.priority))
	t.bound.Store(-1)
	if a == Static {
		t.arena = make([]byte, cfg.stackSize)
	}
	return t
}

func (t *Task) live() *taskRun {
	if t == nil {
		return nil
	}
	return loadBlock(t.cb)
}

// Attach starts fn(ctx, arg) on a new goroutine at the Task's priority,
// pinned to its core unless it is AnyCore. It reports false if the Task is
// already attached, its previous life has not finished yet, or the kernel
// is shut down.
func (t *Task) Attach(fn TaskFunc, arg any) bool {
	if t == nil || t.k == nil || fn == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last != nil {
		select {
		case <-t.last.done:
		default:
			return false
		}
	}

	st := t.cb.acquire()
	if st == nil {
		return false
	}

	stack := t.arena
	if stack == nil {
		stack = make([]byte, t.stackSize)
	}
	for i := range stack {
		stack[i] = stackFill
	}

	st.reset(arg, stack)

	if !t.k.spawn(t, st, fn) {
		t.cb.release()
		return false
	}
	t.last = st
	return true
}

// reset prepares a control block for a new life. A static block is the
// same memory as the previous life, and a caller that loaded it before the
// Task was deleted may still hold nmu or smu, so the locks are taken
// rather than overwritten.
func (st *taskRun) reset(arg any, stack []byte) {
	st.nmu.Lock()
	st.value, st.pending, st.waiting = 0, false, false
	st.signal = drained(st.signal)
	st.nmu.Unlock()

	st.smu.Lock()
	st.suspended, st.resumed = false, nil
	st.smu.Unlock()

	st.ctx, st.cancel = nil, nil
	st.arg, st.stack = arg, stack
	st.done = make(chan struct{})
	st.started.Store(false)
	st.blocked.Store(false)
	st.abort = drained(st.abort)
	st.lastWake = time.Now()
}

// drained returns ch emptied, or a new one-slot channel if ch is nil.
func drained(ch chan struct{}) chan struct{} {
	if ch == nil {
		return make(chan struct{}, 1)
	}
	select {
	case <-ch:
	default:
	}
	return ch
}

// run is the body of the Task's goroutine.
func (t *Task) run(st *taskRun, fn TaskFunc) (err error) {
	defer close(st.done)
	defer t.exit(st)

	if t.core != AnyCore {
		core, release, perr := cpu.Pin(int(t.core))
		defer release()
		if perr != nil {
			debugLog("task %q: pin to core %v failed: %v", t.name, t.core, perr)
		} else {
			if cur := cpu.CurrentCore(); cur >= 0 {
				core = cur
			}
			t.bound.Store(int32(core))
			debugLog("task %q pinned to cpu %d", t.name, core)
		}
	}

	if hook := t.k.cfg.onTaskStart; hook != nil {
		hook(t)
	}

	err = t.invoke(st, fn)

	if hook := t.k.cfg.onTaskExit; hook != nil {
		hook(t, err)
	}
	return err
}

func (t *Task) invoke(st *taskRun, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("task %q panic: %v\nstack trace:\n%s", t.name, r, buf[:n])
		}
	}()

	st.started.Store(true)
	fn(st.ctx, st.arg)
	return nil
}

// exit retires a life once its entry point has returned.
func (t *Task) exit(st *taskRun) {
	st.cancel()
	t.state.Store(int32(Deleted))
	t.bound.Store(-1)

	t.mu.Lock()
	if t.cb.load() == st {
		t.cb.release()
	}
	t.mu.Unlock()

	t.k.unregister(t)
}

// Delete ends the Task: its context is cancelled, so every blocking call
// made with it returns failure, and it leaves every wait list. The entry
// point is expected to return once its context is done. A static Task
// keeps its stack and may be attached again after its entry point has
// returned. Deleting an unattached Task does nothing.
func (t *Task) Delete() {
	if t == nil {
		return
	}

	t.mu.Lock()
	st := loadBlock(t.cb)
	if st == nil {
		t.mu.Unlock()
		return
	}
	t.cb.release()
	t.mu.Unlock()

	t.state.Store(int32(Deleted))
	st.cancel()
}

// Notify ORs v into the Task's notification slot and wakes it if it is
// blocked in TakeNotify.
func (t *Task) Notify(v uint32) bool {
	return t.NotifyAction(v, NotifySetBits)
}

// NotifyAction delivers v into the slot according to action. It reports
// false for NotifyNoOverwrite when a notification is already pending, and
// when the Task is not attached.
func (t *Task) NotifyAction(v uint32, action NotifyAction) bool {
	ok, _ := t.notify(v, action)
	return ok
}

// Give increments the notification slot, using it as a counting semaphore.
func (t *Task) Give() bool {
	return t.NotifyAction(0, NotifyIncrement)
}

func (t *Task) notify(v uint32, action NotifyAction) (ok, woke bool) {
	st := t.live()
	if st == nil {
		return false, false
	}

	st.nmu.Lock()
	defer st.nmu.Unlock()

	switch action {
	case NotifyIncrement:
		st.value++
	case NotifyOverwrite:
		st.value = v
	case NotifyNoOverwrite:
		if st.pending {
			return false, false
		}
		st.value = v
	default:
		st.value |= v
	}
	st.pending = true

	select {
	case st.signal <- struct{}{}:
	default:
	}
	return true, st.waiting
}

// TakeNotify blocks until the slot is non-zero, then returns its value and
// clears it.
func (t *Task) TakeNotify(ctx context.Context) uint32 {
	return t.TakeNotifyTimeout(ctx, Forever)
}

// TakeNotifyTimeout is TakeNotify bounded by timeout. It returns 0 if no
// notification arrived in time; a zero timeout polls.
func (t *Task) TakeNotifyTimeout(ctx context.Context, timeout time.Duration) uint32 {
	st := t.live()
	if st == nil || !checkpoint(ctx) {
		return 0
	}

	timeout, poll := roundTimeout(timeout)
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	giveUp := func() uint32 {
		st.nmu.Lock()
		st.waiting = false
		st.nmu.Unlock()
		return 0
	}

	for {
		st.nmu.Lock()
		if st.value != 0 {
			v := st.value
			st.value = 0
			st.pending = false
			st.waiting = false
			st.nmu.Unlock()
			return v
		}
		if poll {
			st.nmu.Unlock()
			return 0
		}
		st.waiting = true
		st.nmu.Unlock()

		remaining := Forever
		if timeout > 0 {
			if remaining = time.Until(deadline); remaining <= 0 {
				return giveUp()
			}
		}
		if sleepOn(ctx, st.signal, remaining) != wokeReady {
			return giveUp()
		}
	}
}

// Suspend takes the Task off the processor at its next kernel call. Calls
// do not nest: one Resume undoes any number of Suspends.
func (t *Task) Suspend() {
	st := t.live()
	if st == nil {
		return
	}

	st.smu.Lock()
	if !st.suspended {
		st.suspended = true
		st.resumed = make(chan struct{})
	}
	st.smu.Unlock()

	t.state.CompareAndSwap(int32(Running), int32(Suspended))
}

// Resume lets a suspended Task run again. It reports false if the Task was
// not suspended.
func (t *Task) Resume() bool {
	st := t.live()
	if st == nil {
		return false
	}

	st.smu.Lock()
	defer st.smu.Unlock()

	if !st.suspended {
		return false
	}
	st.suspended = false
	close(st.resumed)
	t.state.CompareAndSwap(int32(Suspended), int32(Running))
	return true
}

// checkpoint parks the calling Task while it is suspended.
func (t *Task) checkpoint(ctx context.Context) bool {
	st := t.live()
	if st == nil {
		return ctx.Err() == nil
	}

	st.smu.Lock()
	if !st.suspended {
		st.smu.Unlock()
		return ctx.Err() == nil
	}
	resumed := st.resumed
	st.smu.Unlock()

	select {
	case <-resumed:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// enterBlocked marks the Task as blocked for Wakeup and returns the channel
// Wakeup signals on.
func (t *Task) enterBlocked() (<-chan struct{}, func()) {
	st := t.live()
	if st == nil {
		return nil, func() {}
	}

	select {
	case <-st.abort:
	default:
	}
	st.blocked.Store(true)
	return st.abort, func() { st.blocked.Store(false) }
}

// Wakeup forces the Task out of the Sleep, SleepUntil or blocking wait it
// is in; that call then reports failure. Wakeup returns false if the Task
// was not blocked.
func (t *Task) Wakeup() bool {
	st := t.live()
	if st == nil || !st.blocked.Load() {
		return false
	}
	select {
	case st.abort <- struct{}{}:
	default:
	}
	return true
}

// SetPriority changes the Task's priority. It applies to waits the Task
// enters from now on.
func (t *Task) SetPriority(p int) {
	if t != nil {
		t.priority.Store(int64(p))
	}
}

// Priority returns the Task's priority.
func (t *Task) Priority() int {
	if t == nil {
		return 0
	}
	return int(t.priority.Load())
}

// SleepUntil blocks until one period, truncated to ticks, after the
// previous wake time, then advances that wake time by exactly one period.
// Periodic loops built on it run at a fixed rate whatever their own work
// costs. It must be called by the Task itself. It reports false without
// sleeping when the deadline has already passed, and false when woken
// early.
func (t *Task) SleepUntil(ctx context.Context, period time.Duration) bool {
	st := t.live()
	if st == nil || !checkpoint(ctx) {
		return false
	}
	p := ToTicks(period).Duration()
	if p <= 0 {
		return false
	}

	st.lastWake = st.lastWake.Add(p)
	d := time.Until(st.lastWake)
	if d <= 0 {
		return false
	}
	return sleepOn(ctx, nil, d) == wokeTimeout
}

// Stack returns the Task's stack arena. Bytes the Task writes there count
// towards MemUsage. Only the Task itself may use it.
func (t *Task) Stack() []byte {
	if st := t.live(); st != nil {
		return st.stack
	}
	return nil
}

// MemUsage returns the high-water mark of the stack arena in bytes. It is
// 0 until the Task has run.
func (t *Task) MemUsage() int {
	st := t.live()
	if st == nil || !st.started.Load() {
		return 0
	}
	return highWater(st.stack)
}

// MemFree returns how many bytes of the stack arena were never touched. It
// is 0 until the Task has run.
func (t *Task) MemFree() int {
	st := t.live()
	if st == nil || !st.started.Load() {
		return 0
	}
	return len(st.stack) - highWater(st.stack)
}

func highWater(stack []byte) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] != stackFill {
			return i + 1
		}
	}
	return 0
}

// Name returns the Task's name. Names need not be unique.
func (t *Task) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Core returns the core the Task is pinned to.
func (t *Task) Core() Core {
	if t == nil {
		return AnyCore
	}
	return t.core
}

// CPU returns the OS core the running Task's thread is bound to, or -1 when
// it is not pinned or the platform cannot pin.
func (t *Task) CPU() int {
	if t == nil {
		return -1
	}
	return int(t.bound.Load())
}

// StackSize returns the stack budget in bytes.
func (t *Task) StackSize() int {
	if t == nil {
		return 0
	}
	return t.stackSize
}

// State returns the Task's lifecycle state.
func (t *Task) State() TaskState {
	if t == nil {
		return Unattached
	}
	return TaskState(t.state.Load())
}

// Allocation reports how the Task's control block and stack are held.
func (t *Task) Allocation() Allocation {
	if t == nil || t.cb == nil {
		return Dynamic
	}
	return t.cb.allocation()
}

// Arg returns the argument passed to Attach.
func (t *Task) Arg() any {
	if st := t.live(); st != nil {
		return st.arg
	}
	return nil
}

// Done is closed when the current life's entry point has returned. It is
// nil for a Task that was never attached.
func (t *Task) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	return t.last.done
}

// ISR returns the interrupt-context entry points.
func (t *Task) ISR() TaskISR { return TaskISR{t: t} }

// TaskISR is the interrupt-safe view of a Task.
type TaskISR struct {
	t *Task
}

// Notify is Task.Notify from an interrupt handler. Waking the Task
// requests a yield at handler exit.
func (v TaskISR) Notify(irq *Interrupt, value uint32) bool {
	return v.NotifyAction(irq, value, NotifySetBits)
}

// NotifyAction is Task.NotifyAction from an interrupt handler.
func (v TaskISR) NotifyAction(irq *Interrupt, value uint32, action NotifyAction) bool {
	ok, woke := v.t.notify(value, action)
	if woke {
		irq.requestYield()
	}
	return ok
}

// Give is Task.Give from an interrupt handler.
func (v TaskISR) Give(irq *Interrupt) bool {
	return v.NotifyAction(irq, 0, NotifyIncrement)
}

// Resume is Task.Resume from an interrupt handler.
func (v TaskISR) Resume(irq *Interrupt) bool {
	ok := v.t.Resume()
	if ok {
		irq.requestYield()
	}
	return ok
}
