// Package ratelimit enforces a fixed minimum delay between outbound calls to
// one external platform. Adapters issue calls serially within a run, so the
// simplest possible governor is enough; there is no burst allowance.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces calls at least Delay apart.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter with the given minimum delay between calls.
// A non-positive delay disables limiting.
func New(delay time.Duration) *Limiter {
	if delay <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call is allowed or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
