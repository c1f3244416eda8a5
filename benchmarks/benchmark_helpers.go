package benchmarks

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utkarsh5026/rtos/rtos"
)

// allocConfig names one allocation policy under test.
type allocConfig struct {
	name   string
	static bool
}

// getAllocations returns both allocation policies.
func getAllocations() []allocConfig {
	return []allocConfig{
		{name: "Dynamic", static: false},
		{name: "Static", static: true},
	}
}

// runAllocBenchmark runs benchFunc once per allocation policy.
func runAllocBenchmark(b *testing.B, benchFunc func(b *testing.B, a allocConfig)) {
	for _, a := range getAllocations() {
		b.Run(a.name, func(b *testing.B) {
			benchFunc(b, a)
		})
	}
}

func newSemaphore(b *testing.B, a allocConfig, maxCount, initial int) *rtos.Semaphore {
	b.Helper()
	create := rtos.NewSemaphore
	if a.static {
		create = rtos.NewStaticSemaphore
	}
	s, err := create(maxCount, initial)
	if err != nil {
		b.Fatal(err)
	}
	return s
}

func newQueue(b *testing.B, a allocConfig, length int) *rtos.Queue[int] {
	b.Helper()
	create := rtos.NewQueue[int]
	if a.static {
		create = rtos.NewStaticQueue[int]
	}
	q, err := create(length)
	if err != nil {
		b.Fatal(err)
	}
	return q
}

// newBenchKernel returns a kernel that is shut down when the benchmark ends.
func newBenchKernel(b *testing.B, opts ...rtos.Option) *rtos.Kernel {
	b.Helper()
	k := rtos.New(opts...)
	b.Cleanup(func() {
		if err := k.Shutdown(5 * time.Second); err != nil {
			b.Errorf("shutdown: %v", err)
		}
	})
	return k
}

var ownerSeq atomic.Int64

// ownerContext gives a parallel benchmark goroutine its own lock identity.
func ownerContext() context.Context {
	return rtos.WithOwner(context.Background(), fmt.Sprintf("bench-%d", ownerSeq.Add(1)))
}

// reportThroughput adds an ops/sec metric for itemsPerOp items per iteration.
func reportThroughput(b *testing.B, itemsPerOp int) {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	if nsPerOp > 0 {
		b.ReportMetric(float64(itemsPerOp)*1e9/nsPerOp, "items/sec")
	}
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	// nearest-rank
	index := max(int(math.Round(p*float64(len(sorted)-1))), 0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
