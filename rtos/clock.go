package rtos

import (
	"context"
	"runtime"
	"time"
)

// TickRate is the number of kernel ticks per second.
const TickRate = 1000

// TickPeriod is the duration of one tick.
const TickPeriod = time.Second / TickRate

// Forever is the timeout that never expires.
const Forever time.Duration = -1

// Tick counts kernel ticks since the Kernel was created.
type Tick int64

// ToTicks converts d to whole ticks, truncating. Negative durations map to
// zero.
func ToTicks(d time.Duration) Tick {
	if d <= 0 {
		return 0
	}
	return Tick(d / TickPeriod)
}

// Duration converts t back to a time.Duration.
func (t Tick) Duration() time.Duration {
	return time.Duration(t) * TickPeriod
}

// roundTimeout truncates a timeout to the tick grid. It returns Forever
// unchanged and reports poll when the caller must not block at all.
func roundTimeout(d time.Duration) (rounded time.Duration, poll bool) {
	if d < 0 {
		return Forever, false
	}
	ticks := ToTicks(d)
	if ticks == 0 {
		return 0, true
	}
	return ticks.Duration(), false
}

// Sleep blocks the caller for d, truncated to whole ticks. It returns false
// when the sleep was cut short by ctx or by Task.Wakeup. A duration shorter
// than one tick only yields the processor.
func Sleep(ctx context.Context, d time.Duration) bool {
	if !checkpoint(ctx) {
		return false
	}
	timeout, poll := roundTimeout(d)
	if poll {
		runtime.Gosched()
		return ctx.Err() == nil
	}
	return sleepOn(ctx, nil, timeout) == wokeTimeout
}

// Yield gives other goroutines a chance to run. If the calling Task has
// been suspended, Yield blocks until it is resumed.
func Yield(ctx context.Context) {
	if checkpoint(ctx) {
		runtime.Gosched()
	}
}
