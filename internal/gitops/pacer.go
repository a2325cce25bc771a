package gitops

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer serializes and throttles mutating git operations: a minimum
// inter-operation delay plus a token-bucket cap over a sliding minute. The
// mutex makes concurrent callers queue instead of racing on the shared
// timestamp window.
type pacer struct {
	mu          sync.Mutex
	minInterval time.Duration
	limiter     *rate.Limiter
	last        time.Time
}

// newPacer builds a pacer allowing maxPerMinute operations with at least
// minInterval between consecutive ones.
func newPacer(minInterval time.Duration, maxPerMinute int) *pacer {
	return &pacer{
		minInterval: minInterval,
		limiter:     rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), maxPerMinute),
	}
}

// wait blocks until the next operation may proceed or ctx is canceled.
func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if pause := p.minInterval - time.Since(p.last); pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	p.last = time.Now()
	return nil
}
