package worker

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces out slot acquisitions: consecutive Acquire calls return no
// closer together than the configured interval. It gates the *start* of
// upstream calls; how long a call then takes does not stretch the schedule.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now func() time.Time
}

func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// Acquire blocks until the minimum interval since the previous acquisition
// has elapsed, then claims the slot. Returns early with the context error
// on cancellation; the slot is not claimed in that case.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		wait := l.interval - now.Sub(l.last)
		if l.last.IsZero() || wait <= 0 {
			l.last = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check under the lock; another caller may have claimed
			// the slot while we slept.
		}
	}
}
