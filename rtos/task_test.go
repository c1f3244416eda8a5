package rtos

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// idle is an entry point that waits until the task is deleted.
func idle(ctx context.Context, _ any) {
	<-ctx.Done()
}

func TestTask_AttachLifecycle(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("worker", WithPriority(3), WithStackSize(1024))

	if task.State() != Unattached {
		t.Fatalf("expected unattached, got %v", task.State())
	}
	task.Delete()

	if !task.Attach(idle, "arg") {
		t.Fatal("expected attach to succeed")
	}
	if task.Attach(idle, nil) {
		t.Error("expected second attach to fail")
	}
	if task.State() != Running {
		t.Errorf("expected running, got %v", task.State())
	}
	if task.Arg() != "arg" || task.Name() != "worker" || task.StackSize() != 1024 || task.Priority() != 3 {
		t.Error("expected accessors to report the configuration")
	}

	task.Delete()
	receive(t, task.Done())
	if task.State() != Deleted {
		t.Errorf("expected deleted, got %v", task.State())
	}
	if task.Notify(1) {
		t.Error("expected notify on deleted task to fail")
	}
}

func TestTask_ReturningEntryPointEndsTask(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("oneshot")
	task.Attach(func(context.Context, any) {}, nil)

	receive(t, task.Done())
	if task.State() != Deleted {
		t.Errorf("expected deleted, got %v", task.State())
	}
	if !task.Attach(func(context.Context, any) {}, nil) {
		t.Error("expected a finished dynamic task to be attachable again")
	}
}

func TestTask_NotifyAccumulatesAndClears(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("consumer")
	task.Attach(idle, nil)
	ctx := context.Background()

	task.Notify(0x1)
	task.Notify(0x4)

	if v := task.TakeNotifyTimeout(ctx, 0); v != 0x5 {
		t.Errorf("expected accumulated 0x5, got %#x", v)
	}
	if v := task.TakeNotifyTimeout(ctx, 0); v != 0 {
		t.Errorf("expected cleared slot, got %#x", v)
	}
}

func TestTask_NotifyActions(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("consumer")
	task.Attach(idle, nil)
	ctx := context.Background()

	task.Give()
	task.Give()
	task.Give()
	if v := task.TakeNotifyTimeout(ctx, 0); v != 3 {
		t.Errorf("expected 3 gives, got %d", v)
	}

	task.NotifyAction(0xF0, NotifyOverwrite)
	task.NotifyAction(0x0A, NotifyOverwrite)
	if v := task.TakeNotifyTimeout(ctx, 0); v != 0x0A {
		t.Errorf("expected overwrite to 0x0A, got %#x", v)
	}

	if !task.NotifyAction(7, NotifyNoOverwrite) {
		t.Fatal("expected first no-overwrite to succeed")
	}
	if task.NotifyAction(9, NotifyNoOverwrite) {
		t.Error("expected no-overwrite to fail while pending")
	}
	if v := task.TakeNotifyTimeout(ctx, 0); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
}

func TestTask_TakeNotifyBlocks(t *testing.T) {
	k := newTestKernel(t)
	got := make(chan uint32, 1)

	task := k.NewTask("waiter")
	task.Attach(func(ctx context.Context, _ any) {
		got <- task.TakeNotify(ctx)
	}, nil)

	time.Sleep(5 * time.Millisecond)
	task.Notify(0x10)
	if v := receive(t, got); v != 0x10 {
		t.Errorf("expected 0x10, got %#x", v)
	}
}

func TestTask_TakeNotifyTimeout(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("waiter")
	task.Attach(idle, nil)

	start := time.Now()
	if v := task.TakeNotifyTimeout(context.Background(), 20*time.Millisecond); v != 0 {
		t.Errorf("expected 0 on timeout, got %d", v)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("expected TakeNotifyTimeout to wait for its timeout")
	}
}

func TestTaskISR_NotifyRequestsYield(t *testing.T) {
	k := newTestKernel(t)
	got := make(chan uint32, 1)

	task := k.NewTask("buttons")
	task.Attach(func(ctx context.Context, _ any) {
		got <- task.TakeNotify(ctx)
	}, nil)
	eventually(t, "task to wait", func() bool {
		st := task.live()
		st.nmu.Lock()
		defer st.nmu.Unlock()
		return st.waiting
	})

	yielded := k.Interrupt(func(irq *Interrupt) {
		task.ISR().Give(irq)
	})
	if !yielded {
		t.Error("expected notifying a waiting task to yield")
	}
	if v := receive(t, got); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
}

func TestTask_SuspendResume(t *testing.T) {
	k := newTestKernel(t)
	var ticks atomic.Int64

	task := k.NewTask("ticker")
	task.Attach(func(ctx context.Context, _ any) {
		for Sleep(ctx, time.Millisecond) {
			ticks.Add(1)
		}
	}, nil)
	eventually(t, "task to run", func() bool { return ticks.Load() > 0 })

	task.Suspend()
	task.Suspend()
	if task.State() != Suspended {
		t.Fatalf("expected suspended, got %v", task.State())
	}
	time.Sleep(10 * time.Millisecond)
	frozen := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != frozen {
		t.Errorf("expected no progress while suspended, went from %d to %d", frozen, ticks.Load())
	}

	if !task.Resume() {
		t.Fatal("expected resume to succeed")
	}
	if task.Resume() {
		t.Error("expected resume of a running task to fail")
	}
	eventually(t, "task to make progress", func() bool { return ticks.Load() > frozen })
}

func TestTaskISR_Resume(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewTask("sleeper")
	task.Attach(idle, nil)

	task.Suspend()
	k.Interrupt(func(irq *Interrupt) {
		if !task.ISR().Resume(irq) {
			t.Error("expected ISR resume to succeed")
		}
	})
	if task.State() != Running {
		t.Errorf("expected running, got %v", task.State())
	}
}

func TestTask_Wakeup(t *testing.T) {
	k := newTestKernel(t)
	slept := make(chan bool, 1)

	task := k.NewTask("sleeper")
	if task.Wakeup() {
		t.Error("expected wakeup of an unattached task to fail")
	}
	task.Attach(func(ctx context.Context, _ any) {
		slept <- Sleep(ctx, time.Hour)
		<-ctx.Done()
	}, nil)

	eventually(t, "task to be woken", task.Wakeup)
	if receive(t, slept) {
		t.Error("expected aborted sleep to report false")
	}
	if task.Wakeup() {
		t.Error("expected wakeup of a non-blocked task to fail")
	}
}

func TestTask_WakeupAbortsBlockingWait(t *testing.T) {
	k := newTestKernel(t)
	s := NewBinarySemaphore()
	took := make(chan bool, 1)

	task := k.NewTask("taker")
	task.Attach(func(ctx context.Context, _ any) {
		took <- s.Take(ctx)
	}, nil)
	eventually(t, "task to block", func() bool { return semWaiters(s) == 1 })

	if !task.Wakeup() {
		t.Fatal("expected wakeup to succeed")
	}
	if receive(t, took) {
		t.Error("expected aborted take to fail")
	}
	if semWaiters(s) != 0 {
		t.Error("expected aborted waiter to leave the wait list")
	}
}

func TestTask_DeleteUnblocksWait(t *testing.T) {
	k := newTestKernel(t)
	q, _ := NewQueue[int](1)
	got := make(chan bool, 1)

	task := k.NewTask("receiver")
	task.Attach(func(ctx context.Context, _ any) {
		_, ok := q.Receive(ctx)
		got <- ok
	}, nil)
	eventually(t, "task to block", func() bool {
		_, r := queueWaiters(q)
		return r == 1
	})

	task.Delete()
	if receive(t, got) {
		t.Error("expected receive of a deleted task to fail")
	}
}

func TestTask_SleepUntilDoesNotDrift(t *testing.T) {
	k := newTestKernel(t)
	const period = 10 * time.Millisecond
	done := make(chan time.Duration, 1)

	task := k.NewTask("periodic")
	task.Attach(func(ctx context.Context, _ any) {
		start := time.Now()
		for range 5 {
			time.Sleep(5 * time.Millisecond) // work
			task.SleepUntil(ctx, period)
		}
		done <- time.Since(start)
	}, nil)

	elapsed := receive(t, done)
	if elapsed < 4*period {
		t.Errorf("expected about %v, finished early after %v", 5*period, elapsed)
	}
	if elapsed >= 70*time.Millisecond {
		t.Errorf("expected the work to be absorbed by the period, took %v", elapsed)
	}
}

func TestTask_MemUsage(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewStaticTask("stacky", 512)

	if task.MemUsage() != 0 || task.MemFree() != 0 {
		t.Error("expected 0 before the task has run")
	}

	used := make(chan struct{})
	task.Attach(func(ctx context.Context, _ any) {
		stack := TaskFromContext(ctx).Stack()
		for i := range 100 {
			stack[i] = 0
		}
		close(used)
		<-ctx.Done()
	}, nil)
	<-used

	if task.MemUsage() != 100 {
		t.Errorf("expected 100 bytes used, got %d", task.MemUsage())
	}
	if task.MemFree() != 412 {
		t.Errorf("expected 412 bytes free, got %d", task.MemFree())
	}
}

func TestStaticTask_ReattachReusesStack(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewStaticTask("static", 256)
	if task.Allocation() != Static {
		t.Fatalf("expected static allocation, got %v", task.Allocation())
	}

	stacks := make(chan *byte, 2)
	body := func(ctx context.Context, _ any) {
		stacks <- &TaskFromContext(ctx).Stack()[0]
		<-ctx.Done()
	}

	task.Attach(body, nil)
	first := receive(t, stacks)
	task.Delete()

	eventually(t, "reattach", func() bool { return task.Attach(body, nil) })
	if second := receive(t, stacks); second != first {
		t.Error("expected the same stack memory on reattach")
	}
	if task.MemUsage() != 0 {
		t.Errorf("expected repainted stack, got %d bytes used", task.MemUsage())
	}
}

func TestStaticTask_ReattachStartsClean(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewStaticTask("static", 256)

	task.Attach(idle, nil)
	task.Suspend()
	task.Notify(0x5)
	task.Delete()
	receive(t, task.Done())

	got := make(chan uint32, 1)
	eventually(t, "reattach", func() bool {
		return task.Attach(func(ctx context.Context, _ any) {
			got <- TaskFromContext(ctx).TakeNotifyTimeout(ctx, 0)
			<-ctx.Done()
		}, nil)
	})
	if v := receive(t, got); v != 0 {
		t.Errorf("expected an empty notification slot, got %#x", v)
	}
	if task.State() == Suspended {
		t.Error("expected the new life not to inherit the suspension")
	}
	if task.Resume() {
		t.Error("expected resume of a fresh life to fail")
	}
}

func TestTask_PanicIsReported(t *testing.T) {
	exitErr := make(chan error, 1)
	k := New(WithOnTaskExit(func(task *Task, err error) {
		if task.Name() == "faulty" {
			exitErr <- err
		}
	}))

	task := k.NewTask("faulty")
	task.Attach(func(context.Context, any) {
		panic("boom")
	}, nil)

	err := receive(t, exitErr)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
	receive(t, task.Done())
	if task.State() != Deleted {
		t.Errorf("expected deleted, got %v", task.State())
	}

	if err := k.Shutdown(time.Second); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if err := k.Wait(); err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("expected Wait to return the panic, got %v", err)
	}
}

func TestTask_StartHookRunsOnTaskGoroutine(t *testing.T) {
	started := make(chan string, 4)
	k := newTestKernel(t, WithOnTaskStart(func(task *Task) {
		started <- task.Name()
	}))

	task := k.NewTask("hooked", WithCore(CoreA))
	task.Attach(idle, nil)

	for {
		if name := receive(t, started); name == "hooked" {
			break
		}
	}
	if task.Core() != CoreA {
		t.Errorf("expected core A, got %v", task.Core())
	}
}

func TestTask_AttachAfterShutdownFails(t *testing.T) {
	k := New()
	if err := k.Shutdown(time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.NewTask("late").Attach(idle, nil) {
		t.Error("expected attach after shutdown to fail")
	}
	if err := k.Shutdown(time.Second); !errors.Is(err, ErrKernelShutdown) {
		t.Errorf("expected ErrKernelShutdown, got %v", err)
	}
}

func TestTask_CPUReportsBinding(t *testing.T) {
	k := newTestKernel(t)
	free := k.NewTask("free")
	free.Attach(idle, nil)
	pinned := k.NewTask("pinned", WithCore(CoreA))
	pinned.Attach(idle, nil)

	eventually(t, "tasks to run", func() bool {
		return free.State() == Running && pinned.State() == Running
	})
	if cpu := free.CPU(); cpu != -1 {
		t.Errorf("expected an unpinned task to report -1, got %d", cpu)
	}
	// Pinning is best effort, so an unsupported platform reports -1.
	if cpu := pinned.CPU(); cpu < -1 {
		t.Errorf("unexpected core %d", cpu)
	}

	pinned.Delete()
	receive(t, pinned.Done())
	if cpu := pinned.CPU(); cpu != -1 {
		t.Errorf("expected a deleted task to report -1, got %d", cpu)
	}
}
