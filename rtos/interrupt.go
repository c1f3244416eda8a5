package rtos

import "runtime"

// Interrupt is the execution context of an interrupt handler. It is only
// valid for the duration of the handler it was passed to.
type Interrupt struct {
	yield bool
}

// requestYield records that the handler made a waiter runnable.
func (irq *Interrupt) requestYield() {
	if irq != nil {
		irq.yield = true
	}
}

// YieldRequested reports whether a FromISR call in this handler woke a
// waiter, in which case the kernel yields once the handler returns.
func (irq *Interrupt) YieldRequested() bool {
	return irq != nil && irq.yield
}

// Interrupt runs handler in interrupt context. Handlers never nest, the way
// a single interrupt priority level masks its peers. If the handler woke a
// waiter, the caller yields the processor after the handler returns.
// Interrupt reports whether that deferred yield happened. A nil Kernel or
// handler does nothing.
func (k *Kernel) Interrupt(handler func(irq *Interrupt)) bool {
	if k == nil || handler == nil {
		return false
	}
	irq := &Interrupt{}

	k.isrMu.Lock()
	handler(irq)
	k.isrMu.Unlock()

	if irq.yield {
		runtime.Gosched()
	}
	return irq.yield
}
