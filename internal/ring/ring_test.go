package ring

import "testing"

func TestBuffer_FIFO(t *testing.T) {
	b := New[int](4)

	for i := range 4 {
		if !b.PushBack(i) {
			t.Fatalf("failed to push %d", i)
		}
	}
	if b.PushBack(99) {
		t.Error("expected push into full ring to fail")
	}

	for i := range 4 {
		v, ok := b.PopFront()
		if !ok {
			t.Fatalf("pop %d: expected value", i)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}

	if _, ok := b.PopFront(); ok {
		t.Error("expected pop from empty ring to fail")
	}
}

func TestBuffer_PushFrontBypassesOrder(t *testing.T) {
	b := New[string](3)
	b.PushBack("a")
	b.PushBack("b")
	if !b.PushFront("urgent") {
		t.Fatal("expected PushFront to succeed")
	}
	if b.PushFront("x") {
		t.Error("expected PushFront into full ring to fail")
	}

	expected := []string{"urgent", "a", "b"}
	for _, want := range expected {
		got, _ := b.PopFront()
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	b := New[int](3)
	next := 0
	want := 0

	for round := range 10 {
		for b.PushBack(next) {
			next++
		}
		for range 2 {
			v, ok := b.PopFront()
			if !ok {
				t.Fatalf("round %d: expected value", round)
			}
			if v != want {
				t.Fatalf("round %d: expected %d, got %d", round, want, v)
			}
			want++
		}
	}
}

func TestBuffer_ResetKeepsStorage(t *testing.T) {
	b := New[int](2)
	b.PushBack(1)
	b.PushBack(2)

	before := &b.slots[0]
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("expected empty ring, got %d", b.Len())
	}
	if &b.slots[0] != before {
		t.Error("expected Reset to keep the backing array")
	}
	if len(b.slots) != 2 {
		t.Errorf("expected capacity 2, got %d", len(b.slots))
	}
}
