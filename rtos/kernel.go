package rtos

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kernel owns Task goroutines, the timer service Task and the interrupt
// entry point. Create one with New and stop it with Shutdown.
type Kernel struct {
	cfg    kernelConfig
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu     sync.Mutex
	tasks  []*Task
	closed bool

	isrMu sync.Mutex

	timers *timerService
}

// New creates a Kernel and starts its timer service Task.
func New(opts ...Option) *Kernel {
	cfg := defaultKernelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	k := &Kernel{
		cfg:    cfg,
		start:  time.Now(),
		ctx:    ctx,
		cancel: cancel,
	}
	k.timers = newTimerService(k)
	return k
}

// Now returns the ticks elapsed since the Kernel was created.
func (k *Kernel) Now() Tick {
	return ToTicks(time.Since(k.start))
}

// spawn registers t and starts its goroutine.
func (k *Kernel) spawn(t *Task, st *taskRun, fn TaskFunc) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return false
	}

	ctx, cancel := context.WithCancel(k.ctx)
	st.ctx = withTask(ctx, t)
	st.cancel = cancel
	k.tasks = append(k.tasks, t)
	t.state.Store(int32(Running))

	k.group.Go(func() error {
		return t.run(st, fn)
	})
	return true
}

func (k *Kernel) unregister(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tasks = slices.DeleteFunc(k.tasks, func(x *Task) bool { return x == t })
}

// closing reports whether Shutdown has begun.
func (k *Kernel) closing() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// TaskStats is a snapshot of one Task for diagnostics.
type TaskStats struct {
	Name      string
	Priority  int
	Core      Core
	CPU       int // OS core actually bound, -1 when unpinned
	State     TaskState
	StackSize int
	MemUsage  int
	MemFree   int
}

// TaskStats returns a snapshot of every attached Task, in attach order.
func (k *Kernel) TaskStats() []TaskStats {
	k.mu.Lock()
	tasks := slices.Clone(k.tasks)
	k.mu.Unlock()

	stats := make([]TaskStats, 0, len(tasks))
	for _, t := range tasks {
		stats = append(stats, TaskStats{
			Name:      t.Name(),
			Priority:  t.Priority(),
			Core:      t.Core(),
			CPU:       t.CPU(),
			State:     t.State(),
			StackSize: t.StackSize(),
			MemUsage:  t.MemUsage(),
			MemFree:   t.MemFree(),
		})
	}
	return stats
}

// Shutdown deletes every Task and waits up to timeout for their entry
// points to return. A timeout of zero or less waits indefinitely.
func (k *Kernel) Shutdown(timeout time.Duration) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrKernelShutdown
	}
	k.closed = true
	tasks := slices.Clone(k.tasks)
	k.mu.Unlock()

	for _, t := range tasks {
		t.Delete()
	}
	k.cancel()

	done := make(chan struct{})
	go func() {
		_ = k.group.Wait()
		close(done)
	}()
	return waitUntil(done, timeout)
}

// Wait blocks until every Task has ended and returns the first Task panic,
// if any.
func (k *Kernel) Wait() error {
	return k.group.Wait()
}

func waitUntil(d <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-d
		return nil
	}

	select {
	case <-d:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
