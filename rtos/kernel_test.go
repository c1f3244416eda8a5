package rtos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKernel_Now(t *testing.T) {
	k := newTestKernel(t)
	before := k.Now()
	time.Sleep(10 * time.Millisecond)
	if after := k.Now(); after-before < 9 {
		t.Errorf("expected at least 9 ticks to pass, got %d", after-before)
	}
}

func TestKernel_TaskStats(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewStaticTask("display", 256, WithPriority(2), WithCore(CoreB))
	task.Attach(idle, nil)

	var found *TaskStats
	eventually(t, "task to register", func() bool {
		for _, s := range k.TaskStats() {
			if s.Name == "display" {
				found = &s
				return true
			}
		}
		return false
	})

	if found.Priority != 2 || found.Core != CoreB || found.StackSize != 256 || found.State != Running {
		t.Errorf("unexpected stats: %+v", *found)
	}

	names := map[string]bool{}
	for _, s := range k.TaskStats() {
		names[s.Name] = true
	}
	if !names["Tmr Svc"] {
		t.Error("expected the timer service task in the stats")
	}

	task.Delete()
	<-task.Done()
	for _, s := range k.TaskStats() {
		if s.Name == "display" {
			t.Error("expected a deleted task to leave the stats")
		}
	}
}

func TestKernel_ShutdownTimeout(t *testing.T) {
	k := New()
	release := make(chan struct{})

	stubborn := k.NewTask("stubborn")
	stubborn.Attach(func(context.Context, any) {
		<-release
	}, nil)

	if err := k.Shutdown(20 * time.Millisecond); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("expected ErrShutdownTimeout, got %v", err)
	}
	close(release)
	if err := k.Wait(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKernel_ShutdownUnblocksTasks(t *testing.T) {
	k := New()
	sem := NewBinarySemaphore()
	took := make(chan bool, 1)

	task := k.NewTask("blocked")
	task.Attach(func(ctx context.Context, _ any) {
		took <- sem.Take(ctx)
	}, nil)
	eventually(t, "task to block", func() bool { return semWaiters(sem) == 1 })

	if err := k.Shutdown(time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receive(t, took) {
		t.Error("expected take to fail on shutdown")
	}
}

func TestInterrupt_HandlersDoNotNest(t *testing.T) {
	k := newTestKernel(t)
	inside := make(chan struct{})
	proceed := make(chan struct{})
	second := make(chan struct{})

	go k.Interrupt(func(*Interrupt) {
		close(inside)
		<-proceed
	})
	<-inside

	go k.Interrupt(func(*Interrupt) {
		close(second)
	})

	select {
	case <-second:
		t.Fatal("expected the second handler to wait for the first")
	case <-time.After(10 * time.Millisecond):
	}
	close(proceed)
	receive(t, second)
}

func TestInterrupt_NilIsIgnored(t *testing.T) {
	ran := false
	var nilKernel *Kernel
	if nilKernel.Interrupt(func(*Interrupt) { ran = true }) || ran {
		t.Error("expected a nil kernel to skip the handler")
	}

	k := newTestKernel(t)
	if k.Interrupt(nil) {
		t.Error("expected a nil handler to request no yield")
	}
	k.Interrupt(func(*Interrupt) { ran = true })
	if !ran {
		t.Error("expected the kernel to still run handlers")
	}
}
