// Package rtos provides RTOS-style concurrency primitives on top of the Go
// runtime: Tasks with a 32-bit notification slot, simple and recursive
// Mutexes, counting and binary Semaphores, 24-bit EventGroups, software
// Timers dispatched from a timer service Task, and bounded Queues.
//
// Every primitive comes in a dynamic form, whose control block is allocated
// on creation and dropped on Delete, and a static form, whose control block
// and backing storage are reserved once at construction and retained for
// the lifetime of the object. Both forms share one behavioral contract.
//
// # Blocking calls
//
// Blocking calls take a context.Context first. The plain form waits until
// the call is satisfied; the Timeout form gives up after the given
// duration, truncated to whole ticks (see TickRate). A timeout that
// truncates to zero ticks polls without blocking, and Forever never
// expires. Failure is reported as false or a zero value, never as a panic.
//
// The context also carries the caller's identity. The context a Task's
// entry point receives is bound to that Task, so Mutex ownership, priority
// ordering, Delete and Wakeup all follow it. Goroutines that are not Tasks
// can take a distinct identity with WithOwner.
//
// # Interrupt context
//
// Interrupt handlers run through Kernel.Interrupt and receive an
// *Interrupt. Non-blocking entry points are reached through each
// primitive's ISR method and require that *Interrupt, so blocking calls
// cannot be made from a handler by accident. A handler that wakes a waiter
// requests a yield, which the kernel performs after the handler returns.
//
// # Example
//
//	k := rtos.New()
//	defer k.Shutdown(time.Second)
//
//	q, _ := rtos.NewQueue[int](4)
//	consumer := k.NewTask("consumer", rtos.WithPriority(5))
//	consumer.Attach(func(ctx context.Context, _ any) {
//		for {
//			v, ok := q.Receive(ctx)
//			if !ok {
//				return
//			}
//			fmt.Println(v)
//		}
//	}, nil)
package rtos
