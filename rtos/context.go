package rtos

import (
	"context"
	"sync"
	"time"

	"github.com/utkarsh5026/rtos/internal/waitq"
)

// identity is who a blocking call is made on behalf of.
type identity struct {
	name string
	task *Task
}

type identityKey struct{}

// anonymous is shared by every caller that is neither a Task nor carries
// an owner from WithOwner. It can wait on primitives but never own a lock.
var anonymous = &identity{name: "anonymous"}

// WithOwner returns a context carrying a fresh caller identity. Goroutines
// that are not Tasks use it to own Mutexes independently of each other.
func WithOwner(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, identityKey{}, &identity{name: name})
}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, identityKey{}, &identity{name: t.name, task: t})
}

func callerOf(ctx context.Context) *identity {
	if id, ok := ctx.Value(identityKey{}).(*identity); ok {
		return id
	}
	return anonymous
}

// TaskFromContext returns the Task ctx is bound to, or nil.
func TaskFromContext(ctx context.Context) *Task {
	return callerOf(ctx).task
}

// priorityOf is the wait-list priority of the caller. Non-task callers
// queue at priority zero.
func priorityOf(ctx context.Context) int {
	if t := callerOf(ctx).task; t != nil {
		return t.Priority()
	}
	return 0
}

// checkpoint holds a suspended Task until it is resumed. It returns false
// when ctx ended while waiting.
func checkpoint(ctx context.Context) bool {
	if t := callerOf(ctx).task; t != nil {
		return t.checkpoint(ctx)
	}
	return ctx.Err() == nil
}

type wakeReason uint8

const (
	wokeReady wakeReason = iota
	wokeTimeout
	wokeCancelled
)

// sleepOn waits until ready fires, timeout elapses, ctx ends or the calling
// Task is woken through Task.Wakeup. A nil ready never fires.
func sleepOn(ctx context.Context, ready <-chan struct{}, timeout time.Duration) wakeReason {
	var abort <-chan struct{}
	if t := callerOf(ctx).task; t != nil {
		var leave func()
		abort, leave = t.enterBlocked()
		defer leave()
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ready:
		return wokeReady
	case <-expired:
		return wokeTimeout
	case <-ctx.Done():
		return wokeCancelled
	case <-abort:
		return wokeCancelled
	}
}

// park queues w on q and blocks until it is granted or the wait fails.
// mu guards q and must be held on entry; it is held again on return.
//
// A waker grants w by popping it off q, filling in w.Value and calling
// Wake, all under mu. A waiter that is still queued after it stops waiting
// was therefore never granted and removes itself.
func park[T any](ctx context.Context, mu *sync.Mutex, q *waitq.Queue[T], w *waitq.Waiter[T], timeout time.Duration) bool {
	timeout, poll := roundTimeout(timeout)
	if poll {
		return false
	}

	q.Push(w)
	mu.Unlock()
	sleepOn(ctx, w.Ready(), timeout)
	mu.Lock()

	if w.Queued() {
		q.Remove(w)
		return false
	}
	return !w.Failed()
}

// failAll releases every waiter on q without granting it.
func failAll[T any](q *waitq.Queue[T]) {
	for _, w := range q.Clear() {
		w.Fail()
	}
}
