package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewPacer creates a limiter that lets one call through per interval with no
// burst. The first call proceeds immediately; every later call starts at
// least interval after the previous one. A non-positive interval disables
// pacing.
func NewPacer(name string, interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{
			limiter: rate.NewLimiter(rate.Inf, 1),
			name:    name,
		}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}
