package rtos

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/gammazero/deque"

	"github.com/utkarsh5026/rtos/internal/ring"
	"github.com/utkarsh5026/rtos/internal/waitq"
)

// itemStore is where a queue keeps buffered items. Capacity is enforced by
// the queue, not the store.
type itemStore[T any] interface {
	Len() int
	PushBack(v T)
	PushFront(v T)
	PopFront() T
	Clear()
}

// heapStore backs dynamic queues. Its buffer is allocated on create and
// dropped with the control block.
type heapStore[T any] struct {
	d deque.Deque[T]
}

func (s *heapStore[T]) Len() int      { return s.d.Len() }
func (s *heapStore[T]) PushBack(v T)  { s.d.PushBack(v) }
func (s *heapStore[T]) PushFront(v T) { s.d.PushFront(v) }
func (s *heapStore[T]) PopFront() T   { return s.d.PopFront() }
func (s *heapStore[T]) Clear()        { s.d.Clear() }

// fixedStore backs static queues with a ring allocated once at
// construction.
type fixedStore[T any] struct {
	r *ring.Buffer[T]
}

func (s fixedStore[T]) Len() int      { return s.r.Len() }
func (s fixedStore[T]) PushBack(v T)  { s.r.PushBack(v) }
func (s fixedStore[T]) PushFront(v T) { s.r.PushFront(v) }
func (s fixedStore[T]) Clear()        { s.r.Reset() }

func (s fixedStore[T]) PopFront() T {
	v, _ := s.r.PopFront()
	return v
}

type pendingSend[T any] struct {
	item  T
	front bool
}

type queueState[T any] struct {
	mu        sync.Mutex
	length    int
	items     itemStore[T]
	deleted   bool
	receivers waitq.Queue[T]
	senders   waitq.Queue[pendingSend[T]]
}

// Queue is a bounded FIFO of T with a fixed capacity. Send and SendToBack
// append, SendToFront jumps the line. The zero value is not created.
type Queue[T any] struct {
	cb storage[queueState[T]]
}

// NewQueue creates a queue holding up to length items in a heap buffer.
func NewQueue[T any](length int) (*Queue[T], error) {
	if length < 1 {
		return nil, ErrInvalidLength
	}
	q := &Queue[T]{cb: newStorage[queueState[T]](Dynamic)}
	st := q.cb.acquire()
	st.length = length
	st.items = &heapStore[T]{}
	return q, nil
}

// NewStaticQueue creates a queue whose ring of length slots is allocated
// once and kept for the queue's lifetime.
func NewStaticQueue[T any](length int) (*Queue[T], error) {
	if length < 1 {
		return nil, ErrInvalidLength
	}
	q := &Queue[T]{cb: newStorage[queueState[T]](Static)}
	st := q.cb.acquire()
	st.length = length
	st.items = fixedStore[T]{r: ring.New[T](length)}
	return q, nil
}

func (q *Queue[T]) state() *queueState[T] {
	if q == nil {
		return nil
	}
	return loadBlock(q.cb)
}

// Send appends item, blocking while the queue is full.
func (q *Queue[T]) Send(ctx context.Context, item T) bool {
	return q.send(ctx, item, false, Forever)
}

// SendTimeout is Send bounded by timeout. It reports false if no slot
// freed up in time.
func (q *Queue[T]) SendTimeout(ctx context.Context, item T, timeout time.Duration) bool {
	return q.send(ctx, item, false, timeout)
}

// SendToBack is Send.
func (q *Queue[T]) SendToBack(ctx context.Context, item T) bool {
	return q.send(ctx, item, false, Forever)
}

// SendToBackTimeout is SendTimeout.
func (q *Queue[T]) SendToBackTimeout(ctx context.Context, item T, timeout time.Duration) bool {
	return q.send(ctx, item, false, timeout)
}

// SendToFront puts item at the head, ahead of everything already queued.
func (q *Queue[T]) SendToFront(ctx context.Context, item T) bool {
	return q.send(ctx, item, true, Forever)
}

// SendToFrontTimeout is SendToFront bounded by timeout.
func (q *Queue[T]) SendToFrontTimeout(ctx context.Context, item T, timeout time.Duration) bool {
	return q.send(ctx, item, true, timeout)
}

func (q *Queue[T]) send(ctx context.Context, item T, front bool, timeout time.Duration) bool {
	st := q.state()
	if st == nil || !checkpoint(ctx) {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false
	}
	if ok, _ := st.offer(item, front); ok {
		return true
	}
	w := waitq.NewWaiter(priorityOf(ctx), pendingSend[T]{item: item, front: front})
	return park(ctx, &st.mu, &st.senders, w, timeout)
}

// offer places item without blocking: straight into a waiting receiver,
// else into the buffer if there is room. Caller holds mu.
func (st *queueState[T]) offer(item T, front bool) (ok, woke bool) {
	if r := st.receivers.Pop(); r != nil {
		r.Value = item
		r.Wake()
		return true, true
	}
	if st.items.Len() >= st.length {
		return false, false
	}
	if front {
		st.items.PushFront(item)
	} else {
		st.items.PushBack(item)
	}
	return true, false
}

// take removes the head item without blocking and admits one blocked
// sender into the freed slot. Caller holds mu.
func (st *queueState[T]) take() (item T, ok, woke bool) {
	if st.items.Len() == 0 {
		return item, false, false
	}
	item = st.items.PopFront()
	woke = st.admit()
	return item, true, woke
}

// admit moves blocked senders into free slots. Caller holds mu.
func (st *queueState[T]) admit() bool {
	woke := false
	for st.items.Len() < st.length {
		s := st.senders.Pop()
		if s == nil {
			break
		}
		if s.Value.front {
			st.items.PushFront(s.Value.item)
		} else {
			st.items.PushBack(s.Value.item)
		}
		s.Wake()
		woke = true
	}
	return woke
}

// Receive removes and returns the head item, blocking while the queue is
// empty.
func (q *Queue[T]) Receive(ctx context.Context) (T, bool) {
	return q.ReceiveTimeout(ctx, Forever)
}

// ReceiveTimeout is Receive bounded by timeout. It returns the zero value
// and false if nothing arrived in time.
func (q *Queue[T]) ReceiveTimeout(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	st := q.state()
	if st == nil || !checkpoint(ctx) {
		return zero, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return zero, false
	}
	if item, ok, _ := st.take(); ok {
		return item, true
	}
	w := waitq.NewWaiter(priorityOf(ctx), zero)
	if !park(ctx, &st.mu, &st.receivers, w, timeout) {
		return zero, false
	}
	return w.Value, true
}

// MessagesWaiting returns how many items are buffered. The value is a
// snapshot and may be stale by the time the caller acts on it.
func (q *Queue[T]) MessagesWaiting() int {
	st := q.state()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.items.Len()
}

// SpacesAvailable returns how many free slots remain. Like
// MessagesWaiting, it is only a snapshot.
func (q *Queue[T]) SpacesAvailable() int {
	st := q.state()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.length - st.items.Len()
}

// Size returns the queue's capacity in items.
func (q *Queue[T]) Size() int {
	st := q.state()
	if st == nil {
		return 0
	}
	return st.length
}

// ItemSize returns the size of one item in bytes.
func (q *Queue[T]) ItemSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// Reset discards every buffered item. Blocked senders are then admitted
// into the emptied slots. Resetting while other Tasks send or receive
// without outside coordination is the caller's responsibility.
func (q *Queue[T]) Reset() {
	st := q.state()
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return
	}
	st.items.Clear()
	st.admit()
}

// Allocation reports how the queue's control block and buffer are held.
func (q *Queue[T]) Allocation() Allocation {
	if q == nil || q.cb == nil {
		return Dynamic
	}
	return q.cb.allocation()
}

// Delete destroys the queue and its buffered items. Blocked senders and
// receivers return false.
func (q *Queue[T]) Delete() {
	st := q.state()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.deleted = true
	st.items.Clear()
	failAll(&st.receivers)
	failAll(&st.senders)
	st.mu.Unlock()

	q.cb.release()
}

// ISR returns the interrupt-context entry points.
func (q *Queue[T]) ISR() QueueISR[T] { return QueueISR[T]{q: q} }

// QueueISR is the interrupt-safe view of a Queue. Its methods never block:
// a send into a full queue fails at once.
type QueueISR[T any] struct {
	q *Queue[T]
}

// Send appends item without blocking.
func (v QueueISR[T]) Send(irq *Interrupt, item T) bool { return v.send(irq, item, false) }

// SendToBack is Send.
func (v QueueISR[T]) SendToBack(irq *Interrupt, item T) bool { return v.send(irq, item, false) }

// SendToFront puts item at the head without blocking.
func (v QueueISR[T]) SendToFront(irq *Interrupt, item T) bool { return v.send(irq, item, true) }

func (v QueueISR[T]) send(irq *Interrupt, item T, front bool) bool {
	st := v.q.state()
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return false
	}
	ok, woke := st.offer(item, front)
	if woke {
		irq.requestYield()
	}
	return ok
}

// Receive removes the head item if there is one.
func (v QueueISR[T]) Receive(irq *Interrupt) (T, bool) {
	var zero T
	st := v.q.state()
	if st == nil {
		return zero, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.deleted {
		return zero, false
	}
	item, ok, woke := st.take()
	if woke {
		irq.requestYield()
	}
	return item, ok
}

// MessagesWaiting is Queue.MessagesWaiting from an interrupt handler.
func (v QueueISR[T]) MessagesWaiting(*Interrupt) int { return v.q.MessagesWaiting() }
