package rtos

import (
	"testing"
	"time"
)

// newTestKernel creates a kernel that is shut down when the test ends.
func newTestKernel(t *testing.T, opts ...Option) *Kernel {
	t.Helper()
	k := New(opts...)
	t.Cleanup(func() {
		_ = k.Shutdown(2 * time.Second)
	})
	return k
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// receive reads one value from ch or fails the test after two seconds.
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func semWaiters(s *Semaphore) int {
	st := s.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.waiters.Len()
}

func eventWaiters(g *EventGroup) int {
	st := g.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.waiters.Len()
}
