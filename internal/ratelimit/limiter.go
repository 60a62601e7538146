// Package ratelimit spaces outbound registry calls.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MinRequestsPerSecond is the lowest accepted rate. Lower values would let a
// misconfigured target stall its scheduler for minutes per article.
const MinRequestsPerSecond = 1.0

// Limiter enforces a minimum spacing between calls to Wait.
// A Limiter belongs to a single registry target and is safe for concurrent use.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Limiter allowing requestsPerSecond calls per second.
// Values below MinRequestsPerSecond are clamped.
func New(requestsPerSecond float64) *Limiter {
	if requestsPerSecond < MinRequestsPerSecond {
		requestsPerSecond = MinRequestsPerSecond
	}
	interval := time.Duration(float64(time.Second) / requestsPerSecond)
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the interval has elapsed since the previous call.
// The first call returns immediately. Wait only returns early when ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the effective spacing between calls
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
