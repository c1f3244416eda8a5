package rtos

// Option is a functional option for configuring a Kernel.
type Option func(*kernelConfig)

type kernelConfig struct {
	timerPriority    int
	timerQueueLength int
	timerStackSize   int
	onTaskStart      func(t *Task)
	onTaskExit       func(t *Task, err error)
}

func defaultKernelConfig() kernelConfig {
	return kernelConfig{
		timerPriority:    MaxPriority,
		timerQueueLength: 10,
		timerStackSize:   2048,
	}
}

// MaxPriority is the highest priority the kernel's own tasks use. Tasks
// may be given any int; higher runs first.
const MaxPriority = 24

// WithTimerServicePriority sets the priority of the timer service Task.
// If not specified, defaults to MaxPriority.
func WithTimerServicePriority(p int) Option {
	return func(cfg *kernelConfig) {
		cfg.timerPriority = p
	}
}

// WithTimerQueueLength sets how many timer commands may be pending before
// Start, Stop and friends block (or fail, from an interrupt handler).
// If not specified, defaults to 10.
func WithTimerQueueLength(n int) Option {
	return func(cfg *kernelConfig) {
		if n > 0 {
			cfg.timerQueueLength = n
		}
	}
}

// WithTimerServiceStack sets the stack budget of the timer service Task.
func WithTimerServiceStack(bytes int) Option {
	return func(cfg *kernelConfig) {
		if bytes > 0 {
			cfg.timerStackSize = bytes
		}
	}
}

// WithOnTaskStart sets a hook that runs on a Task's goroutine right before
// its entry point.
func WithOnTaskStart(fn func(t *Task)) Option {
	return func(cfg *kernelConfig) {
		cfg.onTaskStart = fn
	}
}

// WithOnTaskExit sets a hook that runs after a Task's entry point returns.
// err is non-nil when the entry point panicked.
func WithOnTaskExit(fn func(t *Task, err error)) Option {
	return func(cfg *kernelConfig) {
		cfg.onTaskExit = fn
	}
}

// TaskOption is a functional option for configuring a Task.
type TaskOption func(*taskConfig)

type taskConfig struct {
	priority  int
	stackSize int
	core      Core
}

// WithPriority sets the Task's priority. Higher is more urgent. If not
// specified, defaults to 1.
func WithPriority(p int) TaskOption {
	return func(cfg *taskConfig) {
		cfg.priority = p
	}
}

// WithStackSize sets the Task's stack budget in bytes. If not specified,
// defaults to DefaultStackSize.
func WithStackSize(bytes int) TaskOption {
	return func(cfg *taskConfig) {
		if bytes > 0 {
			cfg.stackSize = bytes
		}
	}
}

// WithCore pins the Task to a core. If not specified, the Task runs on any
// core.
func WithCore(c Core) TaskOption {
	return func(cfg *taskConfig) {
		switch c {
		case CoreA, CoreB, AnyCore:
			cfg.core = c
		}
	}
}
