package waitq

import "testing"

func TestQueue_PriorityThenFIFO(t *testing.T) {
	var q Queue[string]

	q.Push(NewWaiter(1, "low-a"))
	q.Push(NewWaiter(5, "high-a"))
	q.Push(NewWaiter(1, "low-b"))
	q.Push(NewWaiter(5, "high-b"))
	q.Push(NewWaiter(3, "mid"))

	expected := []string{"high-a", "high-b", "mid", "low-a", "low-b"}
	for i, want := range expected {
		w := q.Pop()
		if w == nil {
			t.Fatalf("pop %d: expected %q, got nil", i, want)
		}
		if w.Value != want {
			t.Errorf("pop %d: expected %q, got %q", i, want, w.Value)
		}
		if w.Queued() {
			t.Errorf("pop %d: popped waiter still reports queued", i)
		}
	}

	if q.Pop() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestQueue_Remove(t *testing.T) {
	var q Queue[int]
	ws := make([]*Waiter[int], 5)
	for i := range ws {
		ws[i] = NewWaiter(i, i)
		q.Push(ws[i])
	}

	if !q.Remove(ws[2]) {
		t.Fatal("expected Remove to succeed for queued waiter")
	}
	if q.Remove(ws[2]) {
		t.Error("expected second Remove to fail")
	}
	if q.Len() != 4 {
		t.Errorf("expected len 4, got %d", q.Len())
	}

	for _, want := range []int{4, 3, 1, 0} {
		if got := q.Pop().Value; got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestQueue_OrderedDoesNotMutate(t *testing.T) {
	var q Queue[int]
	for i, p := range []int{2, 7, 2, 9} {
		q.Push(NewWaiter(p, i))
	}

	ordered := q.Ordered()
	got := make([]int, 0, len(ordered))
	for _, w := range ordered {
		got = append(got, w.Value)
	}
	expected := []int{3, 1, 0, 2}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected order %v, got %v", expected, got)
		}
	}

	if q.Len() != 4 {
		t.Errorf("expected len 4 after Ordered, got %d", q.Len())
	}
	for _, w := range ordered {
		if !q.Remove(w) {
			t.Errorf("waiter %d lost its heap slot after Ordered", w.Value)
		}
	}
}

func TestWaiter_WakeIsNonBlocking(t *testing.T) {
	w := NewWaiter(0, struct{}{})
	w.Wake()
	w.Wake()

	select {
	case <-w.Ready():
	default:
		t.Fatal("expected a pending wake signal")
	}

	select {
	case <-w.Ready():
		t.Fatal("expected exactly one wake signal")
	default:
	}
}

func TestQueue_Clear(t *testing.T) {
	var q Queue[int]
	q.Push(NewWaiter(0, 1))
	q.Push(NewWaiter(4, 2))

	out := q.Clear()
	if len(out) != 2 || out[0].Value != 2 || out[1].Value != 1 {
		t.Fatalf("unexpected clear order: %v", out)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestWaiter_Fail(t *testing.T) {
	var q Queue[int]
	w := NewWaiter(1, 0)
	q.Push(w)

	for _, x := range q.Clear() {
		x.Fail()
	}

	if w.Queued() {
		t.Error("expected waiter to be dequeued")
	}
	if !w.Failed() {
		t.Error("expected waiter to be marked failed")
	}
	select {
	case <-w.Ready():
	default:
		t.Error("expected Fail to signal the waiter")
	}
}
