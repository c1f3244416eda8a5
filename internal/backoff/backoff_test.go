package backoff

import (
	"testing"
	"time"
)

func TestExponential_Doubles(t *testing.T) {
	s := New(Exponential, 10*time.Millisecond, time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 0},
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{3, 80 * time.Millisecond},
		{7, time.Second},
		{100, time.Second},
	}

	for _, tt := range tests {
		if got := s.Next(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestJittered_StaysInBand(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, 10*time.Second, 0.2)

	for range 200 {
		got := s.Next(2)
		if got < 320*time.Millisecond || got > 480*time.Millisecond {
			t.Fatalf("expected delay within ±20%% of 400ms, got %v", got)
		}
	}
}

func TestJittered_ClampsFactor(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, 10*time.Second, 5)

	for range 200 {
		got := s.Next(0)
		if got < 0 || got > 200*time.Millisecond {
			t.Fatalf("expected delay within [0, 200ms], got %v", got)
		}
	}
}

func TestDecorrelated_BoundsAndReset(t *testing.T) {
	base := 50 * time.Millisecond
	ceiling := 400 * time.Millisecond
	s := New(Decorrelated, base, ceiling, 0)

	if got := s.Next(0); got != base {
		t.Errorf("expected first delay %v, got %v", base, got)
	}

	for i := 1; i < 50; i++ {
		got := s.Next(i)
		if got < base || got > ceiling {
			t.Fatalf("attempt %d: expected delay in [%v, %v], got %v", i, base, ceiling, got)
		}
	}

	s.Reset()
	got := s.Next(1)
	if got < base || got > 3*base {
		t.Errorf("expected delay in [%v, %v] after reset, got %v", base, 3*base, got)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Exponential, Jittered, Decorrelated} {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): unexpected error: %v", k, err)
		}
		if got != k {
			t.Errorf("ParseKind(%q): expected %v, got %v", k, k, got)
		}
	}

	if _, err := ParseKind("linear"); err == nil {
		t.Error("expected an error for an unknown curve")
	}
}
