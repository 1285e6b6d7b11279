package dispatcher

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Spacer enforces a minimum interval between starts for one call site,
// e.g. a specific remote endpoint. It is safe for concurrent use.
type Spacer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewSpacer creates a Spacer. A non-positive interval disables spacing.
func NewSpacer(interval time.Duration) *Spacer {
	if interval <= 0 {
		return &Spacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Spacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the configured minimum spacing
func (s *Spacer) Interval() time.Duration {
	return s.interval
}

// Wait blocks until the next start is allowed or ctx is done
func (s *Spacer) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}
