package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDurationGuardFiresLimitOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ticks []time.Duration
	var limits atomic.Int32

	guard := NewDurationGuard(5*time.Millisecond, 30*time.Millisecond,
		func(elapsed time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			ticks = append(ticks, elapsed)
		},
		func() { limits.Add(1) },
	)
	guard.Start()

	waitFor(t, "limit", func() bool { return limits.Load() == 1 })
	time.Sleep(30 * time.Millisecond)

	if got := limits.Load(); got != 1 {
		t.Fatalf("limit fired %d times", got)
	}
	if guard.Running() {
		t.Fatalf("guard should stop itself at the limit")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) == 0 {
		t.Fatalf("expected ticks before the limit")
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			t.Fatalf("elapsed went backwards: %v", ticks)
		}
	}
	if ticks[len(ticks)-1] < 30*time.Millisecond {
		t.Fatalf("last tick %v below limit", ticks[len(ticks)-1])
	}
}

func TestDurationGuardStopPreventsLimit(t *testing.T) {
	t.Parallel()

	var limits atomic.Int32
	guard := NewDurationGuard(5*time.Millisecond, 50*time.Millisecond, nil, func() { limits.Add(1) })

	guard.Start()
	time.Sleep(10 * time.Millisecond)
	guard.Stop()
	guard.Stop()

	time.Sleep(80 * time.Millisecond)
	if limits.Load() != 0 {
		t.Fatalf("limit fired after stop")
	}
	if guard.Running() {
		t.Fatalf("guard still running after stop")
	}
}

func TestDurationGuardNoTickAfterStopReturns(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		var stopped atomic.Bool
		var late atomic.Int32
		var ticks atomic.Int32
		guard := NewDurationGuard(time.Millisecond, time.Minute, func(time.Duration) {
			ticks.Add(1)
			if stopped.Load() {
				late.Add(1)
			}
		}, nil)

		guard.Start()
		waitFor(t, "first tick", func() bool { return ticks.Load() > 0 })
		guard.Stop()
		stopped.Store(true)

		time.Sleep(5 * time.Millisecond)
		if got := late.Load(); got != 0 {
			t.Fatalf("iteration %d: %d ticks delivered after stop", i, got)
		}
	}
}

func TestDurationGuardStartResetsElapsed(t *testing.T) {
	t.Parallel()

	var last atomic.Int64
	guard := NewDurationGuard(5*time.Millisecond, time.Minute, func(elapsed time.Duration) { last.Store(int64(elapsed)) }, nil)
	defer guard.Stop()

	guard.Start()
	waitFor(t, "elapsed grows", func() bool { return time.Duration(last.Load()) >= 200*time.Millisecond })

	guard.Start()
	time.Sleep(10 * time.Millisecond)
	last.Store(0)
	waitFor(t, "fresh tick", func() bool { return last.Load() > 0 })
	if got := time.Duration(last.Load()); got >= 150*time.Millisecond {
		t.Fatalf("elapsed not reset on restart: %v", got)
	}
}

func TestDurationGuardDefaults(t *testing.T) {
	t.Parallel()

	guard := NewDurationGuard(0, 0, nil, nil)
	if guard.interval != 100*time.Millisecond || guard.limit != 10*time.Minute {
		t.Fatalf("unexpected defaults: %v %v", guard.interval, guard.limit)
	}
}
