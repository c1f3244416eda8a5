package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/rtos/rtos"
)

var errStalled = errors.New("scenario stalled")

// Scenario is one stress workload run against a fresh kernel.
type Scenario struct {
	Name string
	Run  func(k *rtos.Kernel, ops, workers int) (Result, error)
}

// Result is what one scenario run measured.
type Result struct {
	Name    string
	Ops     int
	Elapsed time.Duration
	Note    string
}

// OpsPerSec is the measured rate.
func (r Result) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

var allScenarios = []Scenario{
	{Name: "Mutex contention", Run: mutexContention},
	{Name: "Semaphore ping-pong", Run: semaphorePingPong},
	{Name: "Queue throughput", Run: queueThroughput},
	{Name: "EventGroup join", Run: eventGroupJoin},
	{Name: "Notify ping-pong", Run: notifyPingPong},
	{Name: "Timer jitter", Run: timerJitter},
}

// waitDone waits for a task to signal completion, failing after a generous bound.
func waitDone(done <-chan struct{}, bound time.Duration) error {
	select {
	case <-done:
		return nil
	case <-time.After(bound):
		return errStalled
	}
}

func mutexContention(_ *rtos.Kernel, ops, workers int) (Result, error) {
	m := rtos.NewStaticMutex()
	per := max(ops/workers, 1)
	shared := 0

	var g errgroup.Group
	start := time.Now()
	for w := range workers {
		g.Go(func() error {
			ctx := rtos.WithOwner(context.Background(), fmt.Sprintf("worker-%d", w))
			for range per {
				if !m.Take(ctx) {
					return fmt.Errorf("worker %d: take failed", w)
				}
				shared++
				if !m.Give(ctx) {
					return fmt.Errorf("worker %d: give rejected", w)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	elapsed := time.Since(start)
	if shared != per*workers {
		return Result{}, fmt.Errorf("lost updates: expected %d, got %d", per*workers, shared)
	}
	return Result{Ops: per * workers, Elapsed: elapsed, Note: fmt.Sprintf("%d owners", workers)}, nil
}

func semaphorePingPong(k *rtos.Kernel, ops, _ int) (Result, error) {
	ping := rtos.NewBinarySemaphore()
	pong := rtos.NewBinarySemaphore()
	done := make(chan struct{})

	ponger := k.NewTask("pong", rtos.WithPriority(3), rtos.WithCore(rtos.CoreB))
	ponger.Attach(func(ctx context.Context, _ any) {
		for ping.Take(ctx) {
			pong.Give()
		}
	}, nil)

	start := time.Now()
	pinger := k.NewTask("ping", rtos.WithPriority(3), rtos.WithCore(rtos.CoreA))
	pinger.Attach(func(ctx context.Context, _ any) {
		defer close(done)
		for range ops {
			ping.Give()
			if !pong.Take(ctx) {
				return
			}
		}
	}, nil)

	if err := waitDone(done, time.Minute); err != nil {
		return Result{}, err
	}
	return Result{Ops: ops, Elapsed: time.Since(start), Note: "cross-core round trips"}, nil
}

func queueThroughput(k *rtos.Kernel, ops, workers int) (Result, error) {
	q, err := rtos.NewStaticQueue[int](64)
	if err != nil {
		return Result{}, err
	}
	per := max(ops/workers, 1)
	total := per * workers
	done := make(chan struct{})
	received := 0

	consumer := k.NewTask("consumer", rtos.WithPriority(4))
	consumer.Attach(func(ctx context.Context, _ any) {
		defer close(done)
		for received < total {
			if _, ok := q.Receive(ctx); !ok {
				return
			}
			received++
		}
	}, nil)

	var g errgroup.Group
	start := time.Now()
	for w := range workers {
		g.Go(func() error {
			ctx := context.Background()
			for i := range per {
				if !q.SendTimeout(ctx, i, time.Second) {
					return fmt.Errorf("producer %d: send %d timed out", w, i)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := waitDone(done, time.Minute); err != nil {
		return Result{}, err
	}
	return Result{
		Ops:     total,
		Elapsed: time.Since(start),
		Note:    fmt.Sprintf("%d producers, %d B items", workers, q.ItemSize()),
	}, nil
}

func eventGroupJoin(k *rtos.Kernel, ops, workers int) (Result, error) {
	workers = min(workers, 24)
	g := rtos.NewStaticEventGroup()
	next, err := rtos.NewSemaphore(workers, 0)
	if err != nil {
		return Result{}, err
	}
	all := uint32(1)<<workers - 1
	rounds := max(ops/workers, 1)
	done := make(chan struct{})

	for w := range workers {
		task := k.NewTask(fmt.Sprintf("member-%d", w), rtos.WithPriority(2))
		task.Attach(func(ctx context.Context, _ any) {
			for range rounds {
				g.Set(1 << w)
				if !next.Take(ctx) {
					return
				}
			}
		}, nil)
	}

	start := time.Now()
	coordinator := k.NewTask("coordinator", rtos.WithPriority(5))
	coordinator.Attach(func(ctx context.Context, _ any) {
		defer close(done)
		for range rounds {
			if !g.WaitAllFlags(ctx, all) {
				return
			}
			for range workers {
				next.Give()
			}
		}
	}, nil)

	if err := waitDone(done, time.Minute); err != nil {
		return Result{}, err
	}
	return Result{Ops: rounds, Elapsed: time.Since(start), Note: fmt.Sprintf("%d-way joins", workers)}, nil
}

func notifyPingPong(k *rtos.Kernel, ops, _ int) (Result, error) {
	done := make(chan struct{})
	var left, right *rtos.Task

	right = k.NewTask("right", rtos.WithPriority(3))
	left = k.NewTask("left", rtos.WithPriority(3))

	right.Attach(func(ctx context.Context, _ any) {
		for right.TakeNotify(ctx) != 0 {
			left.Give()
		}
	}, nil)

	start := time.Now()
	left.Attach(func(ctx context.Context, _ any) {
		defer close(done)
		for range ops {
			right.Give()
			if left.TakeNotify(ctx) == 0 {
				return
			}
		}
	}, nil)

	if err := waitDone(done, time.Minute); err != nil {
		return Result{}, err
	}
	return Result{Ops: ops, Elapsed: time.Since(start), Note: "task notifications"}, nil
}

func timerJitter(k *rtos.Kernel, ops, _ int) (Result, error) {
	const period = 2 * time.Millisecond
	fires := min(ops, 250)
	stamps := make(chan time.Time, fires+8)

	tm, err := k.NewTimer("jitter", period)
	if err != nil {
		return Result{}, err
	}
	tm.Attach(func(*rtos.Timer) {
		select {
		case stamps <- time.Now():
		default:
		}
	}, true)

	ctx := context.Background()
	start := time.Now()
	tm.Start(ctx)

	var worst, sum time.Duration
	for i := range fires {
		var at time.Time
		select {
		case at = <-stamps:
		case <-time.After(time.Second):
			return Result{}, errStalled
		}
		late := max(at.Sub(start.Add(time.Duration(i+1)*period)), 0)
		worst = max(worst, late)
		sum += late
	}
	tm.Stop(ctx)

	mean := sum / time.Duration(fires)
	return Result{
		Ops:     fires,
		Elapsed: time.Since(start),
		Note:    fmt.Sprintf("mean late %v, worst %v", mean.Round(time.Microsecond), worst.Round(time.Microsecond)),
	}, nil
}
