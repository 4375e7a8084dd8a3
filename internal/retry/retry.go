// Package retry re-runs calls to flaky backends with capped exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy describes how a call is retried. The zero value makes one attempt.
type Policy struct {
	Attempts  int           // total attempts, including the first
	BaseDelay time.Duration // wait before the second attempt; doubles after
	MaxDelay  time.Duration // cap on a single wait; 0 means uncapped

	// Retryable filters errors worth another attempt. Nil retries every
	// error except context cancellation and expiry.
	Retryable func(error) bool

	// OnRetry runs before each wait with the failed attempt (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx ends. A wait that would outlast ctx's deadline is skipped
// and the last error returned, so callers keep their remaining budget.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || !p.retryable(err) {
			return err
		}

		wait := p.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// delay is BaseDelay·2^(attempt-1), capped, with ±25% jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d > 0; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	jitter := d / 4
	return d - jitter + rand.N(2*jitter+1)
}
