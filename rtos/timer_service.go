package rtos

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
)

type timerOp uint8

const (
	opStart timerOp = iota
	opStop
	opSetPeriod
	opDelete
)

type timerCommand struct {
	op     timerOp
	st     *timerState
	at     Tick
	period Tick
}

// timerService is the Task that keeps active timers ordered by expiry and
// runs their callbacks. Commands reach it through a static Queue.
type timerService struct {
	k      *Kernel
	queue  *Queue[timerCommand]
	task   *Task
	active timerHeap
}

func newTimerService(k *Kernel) *timerService {
	q, _ := NewStaticQueue[timerCommand](k.cfg.timerQueueLength)
	s := &timerService{k: k, queue: q}
	s.task = k.NewStaticTask("Tmr Svc", k.cfg.timerStackSize, WithPriority(k.cfg.timerPriority))
	s.task.Attach(s.loop, nil)
	return s
}

// send queues cmd. A blocking send also gives up when the kernel shuts
// down, since nothing drains the queue after that.
func (s *timerService) send(ctx context.Context, irq *Interrupt, cmd timerCommand) bool {
	if irq != nil {
		return s.queue.ISR().Send(irq, cmd)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.k.ctx, cancel)
	defer stop()
	return s.queue.Send(ctx, cmd)
}

func (s *timerService) loop(ctx context.Context, _ any) {
	for {
		timeout := Forever
		if next := s.active.peek(); next != nil {
			timeout = max(next.expiry-s.k.Now(), 0).Duration()
		}

		if cmd, ok := s.queue.ReceiveTimeout(ctx, timeout); ok {
			s.apply(cmd)
		} else if ctx.Err() != nil {
			return
		}
		s.expire(s.k.Now())
	}
}

func (s *timerService) apply(cmd timerCommand) {
	st := cmd.st

	switch cmd.op {
	case opStart:
		st.mu.Lock()
		st.starts--
		live := !st.deleted && st.active
		period := st.period
		st.mu.Unlock()
		if live {
			s.schedule(st, cmd.at+period)
		}

	case opSetPeriod:
		if st.index >= 0 {
			s.schedule(st, cmd.at+cmd.period)
		}

	case opStop, opDelete:
		if st.index >= 0 {
			heap.Remove(&s.active, st.index)
		}
	}
}

// schedule places st at expiry, moving it if it is already queued.
func (s *timerService) schedule(st *timerState, expiry Tick) {
	st.expiry = expiry
	if st.index >= 0 {
		heap.Fix(&s.active, st.index)
		return
	}
	heap.Push(&s.active, st)
}

// expire runs every callback due at or before now. Auto-reload timers are
// re-armed from their previous expiry, not from now, so they do not drift.
func (s *timerService) expire(now Tick) {
	for {
		st := s.active.peek()
		if st == nil || st.expiry > now {
			return
		}
		heap.Pop(&s.active)

		st.mu.Lock()
		fn, auto, period := st.fn, st.autoReload, st.period
		fire := !st.deleted && st.active
		if !auto && fire {
			st.fired++
			// a queued Start re-arms the timer; leave it active for that
			if st.starts == 0 {
				st.active = false
			}
		}
		st.mu.Unlock()

		if !fire {
			continue
		}
		if auto {
			st.expiry += period
			heap.Push(&s.active, st)
		}
		s.invoke(st.timer, fn)
	}
}

func (s *timerService) invoke(t *Timer, fn TimerFunc) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err := fmt.Errorf("timer %q callback panic: %v\nstack trace:\n%s", t.Name(), r, buf[:n])
			debugLog("%v", err)
		}
	}()
	fn(t)
}

// timerHeap is a min-heap of timers by expiry.
type timerHeap []*timerState

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].expiry < h[j].expiry }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	st, ok := x.(*timerState)
	if !ok {
		panic("timerHeap.Push: invalid type assertion")
	}
	st.index = len(*h)
	*h = append(*h, st)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	st := old[n-1]
	old[n-1] = nil
	st.index = -1
	*h = old[:n-1]
	return st
}

func (h timerHeap) peek() *timerState {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
