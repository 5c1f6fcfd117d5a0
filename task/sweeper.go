package task

import (
	"context"
	"time"

	"github.com/turbomcp/turbomcp-go/corelog"
)

// Sweeper periodically removes expired tasks from a Store. The zero
// value is not usable; construct with NewSweeper.
type Sweeper struct {
	store    Store
	interval time.Duration
	done     chan struct{}
}

// NewSweeper constructs a Sweeper that calls store.RunSweep once per
// interval. A typical interval is 60 seconds.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, done: make(chan struct{})}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
// It is intended to be launched in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n := s.store.RunSweep(ctx, time.Now())
			if n > 0 {
				corelog.Debug(ctx, "task sweep removed expired tasks", "count", n)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the sweep loop to exit. Safe to call at most once.
func (s *Sweeper) Stop() {
	close(s.done)
}
