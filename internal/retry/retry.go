// Package retry wraps single outbound calls with classification-driven
// retries and linearly increasing backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Classification decides how a failed call outcome is treated.
type Classification int

const (
	// Retryable outcomes are retried with backoff until attempts run out.
	Retryable Classification = iota
	// Fatal outcomes abort immediately without further attempts.
	Fatal
)

// Classifier maps a call error to a Classification.
type Classifier func(error) Classification

// Policy retries one outbound call. A retryable failure waits
// attempt*BaseDelay before the next try; a fatal failure surfaces at once.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    Classifier
}

// linearBackOff yields BaseDelay, 2*BaseDelay, 3*BaseDelay, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Do runs op under the policy. The returned error is nil on success, the
// fatal error when classification aborts, or the last retryable error once
// MaxAttempts is exhausted; the caller surfaces the latter as a fetch-level
// failure.
func (p *Policy) Do(ctx context.Context, op func() error) error {
	_, err := DoValue(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p *Policy, op func() (T, error)) (T, error) {
	classify := p.Classify
	if classify == nil {
		classify = func(error) Classification { return Retryable }
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	wrapped := func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if classify(err) == Fatal {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(&linearBackOff{base: p.BaseDelay}),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
}
