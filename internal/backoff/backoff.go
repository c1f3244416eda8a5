// Package backoff computes retry delays for tasks that poll a peripheral or
// link until it comes up.
package backoff

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// shift limit before 1<<n overflows int64
const maxShift = 62

// Kind selects the delay curve.
type Kind int

const (
	// Exponential doubles the delay on every attempt.
	Exponential Kind = iota
	// Jittered spreads the exponential delay by a random factor.
	Jittered
	// Decorrelated draws each delay from [base, 3*previous].
	Decorrelated
)

var kindNames = [...]string{
	Exponential:  "exponential",
	Jittered:     "jittered",
	Decorrelated: "decorrelated",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a curve name, as printed by Kind.String, back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("backoff: unknown curve %q", name)
}

// Strategy yields the delay to wait before retry number attempt (0-indexed).
type Strategy interface {
	Next(attempt int) time.Duration
	Reset()
}

// New builds a strategy. jitter is only used by Jittered and is clamped to [0, 1].
func New(kind Kind, base, ceiling time.Duration, jitter float64) Strategy {
	switch kind {
	case Jittered:
		return &jittered{base: base, ceiling: ceiling, factor: min(max(jitter, 0), 1)}
	case Decorrelated:
		return &decorrelated{base: base, ceiling: ceiling, prev: base}
	default:
		return exponential{base: base, ceiling: ceiling}
	}
}

type exponential struct {
	base, ceiling time.Duration
}

func (e exponential) Next(attempt int) time.Duration { return grow(attempt, e.base, e.ceiling) }

func (exponential) Reset() {}

// jittered applies delay * (1 ± factor).
type jittered struct {
	base, ceiling time.Duration
	factor        float64
}

func (j *jittered) Next(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	d := grow(attempt, j.base, j.ceiling)
	scaled := time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*j.factor)) // #nosec G404 -- jitter only
	return min(max(scaled, 0), j.ceiling)
}

func (*jittered) Reset() {}

// decorrelated depends on the previous delay rather than the attempt number,
// so concurrent retriers drift apart.
type decorrelated struct {
	mu            sync.Mutex
	base, ceiling time.Duration
	prev          time.Duration
}

func (d *decorrelated) Next(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt == 0 {
		d.prev = d.base
		return d.base
	}

	upper := min(d.prev*3, d.ceiling)
	span := upper - d.base
	if span <= 0 {
		d.prev = d.base
		return d.base
	}

	d.prev = d.base + rand.N(span) // #nosec G404 -- jitter only
	return d.prev
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	d.prev = d.base
	d.mu.Unlock()
}

func grow(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return ceiling
	}
	d := time.Duration(int64(1)<<uint(attempt)) * base
	if d > ceiling || d < 0 {
		return ceiling
	}
	return d
}
