package rtos

import "errors"

var (
	// ErrInvalidMax is returned when a semaphore is created with a maximum count below one.
	ErrInvalidMax = errors.New("rtos: semaphore max must be at least 1")

	// ErrInvalidInitial is returned when a semaphore's initial count is outside [0, max].
	ErrInvalidInitial = errors.New("rtos: semaphore initial count out of range")

	// ErrInvalidLength is returned when a queue is created with a length below one.
	ErrInvalidLength = errors.New("rtos: queue length must be at least 1")

	// ErrInvalidPeriod is returned when a timer period is shorter than one tick.
	ErrInvalidPeriod = errors.New("rtos: timer period must be at least one tick")

	// ErrKernelShutdown is returned when the kernel has already been shut down.
	ErrKernelShutdown = errors.New("rtos: kernel is shut down")

	// ErrShutdownTimeout is returned when tasks do not exit within the shutdown timeout.
	ErrShutdownTimeout = errors.New("rtos: shutdown timed out waiting for tasks")
)
