package usecase

import (
	"sync"
	"time"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultMaxDuration  = 10 * time.Minute
)

// DurationGuard reports elapsed recording time and fires onLimit once when
// the ceiling is reached.
type DurationGuard struct {
	interval time.Duration
	limit    time.Duration
	onTick   func(time.Duration)
	onLimit  func()
	now      func() time.Time

	mu   sync.Mutex
	stop chan struct{}
}

func NewDurationGuard(interval, limit time.Duration, onTick func(time.Duration), onLimit func()) *DurationGuard {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if limit <= 0 {
		limit = defaultMaxDuration
	}
	if onTick == nil {
		onTick = func(time.Duration) {}
	}
	if onLimit == nil {
		onLimit = func() {}
	}
	return &DurationGuard{
		interval: interval,
		limit:    limit,
		onTick:   onTick,
		onLimit:  onLimit,
		now:      time.Now,
	}
}

// Start resets elapsed time and begins ticking. A running guard is restarted.
func (g *DurationGuard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		close(g.stop)
	}
	stop := make(chan struct{})
	g.stop = stop
	go g.run(g.now(), stop)
}

// Stop halts ticking. Safe to call when not running.
func (g *DurationGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

// Running reports whether the guard is ticking.
func (g *DurationGuard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop != nil
}

func (g *DurationGuard) run(started time.Time, stop chan struct{}) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		g.mu.Lock()
		if g.stop != stop {
			g.mu.Unlock()
			return
		}
		// Ticking under the lock means no tick is delivered once Stop returns.
		elapsed := g.now().Sub(started)
		g.onTick(elapsed)
		if elapsed < g.limit {
			g.mu.Unlock()
			continue
		}
		close(stop)
		g.stop = nil
		g.mu.Unlock()

		g.onLimit()
		return
	}
}
