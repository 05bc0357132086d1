package spotify

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// WaitStrategy computes how long to wait before the next attempt.
type WaitStrategy func(attempt int, err error) time.Duration

// RecoverFunc is consulted after each failed attempt. Returning nil marks the
// error recoverable and allows another attempt; returning an error stops the
// retry loop and surfaces that error to the caller.
type RecoverFunc func(ctx context.Context, err error) error

// Policy is an explicit retry policy applied around each remote call site.
//
// Attempts is the total call budget including the first try.
type Policy struct {
	Attempts int
	Wait     WaitStrategy
}

// WaitRetryAfterOrJitter prefers the provider's Retry-After hint; without one
// it falls back to a bounded random jitter in [0, max).
func WaitRetryAfterOrJitter(max time.Duration) WaitStrategy {
	return func(attempt int, err error) time.Duration {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return apiErr.RetryAfter
		}
		if max <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(int64(max)))
	}
}

// Do runs call under the policy. recover decides whether a failure is worth
// another attempt; when nil, DefaultRecover is used.
func (p Policy) Do(ctx context.Context, call func(context.Context) error, recover RecoverFunc) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if recover == nil {
		recover = DefaultRecover
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = call(ctx)
		if err == nil {
			return nil
		}

		if terminal := recover(ctx, err); terminal != nil {
			return terminal
		}

		if attempt >= attempts {
			return err
		}

		var wait time.Duration
		if p.Wait != nil {
			wait = p.Wait(attempt, err)
		}
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// DefaultRecover treats network-level failures, 429 and 5xx as recoverable;
// every other API failure is terminal.
func DefaultRecover(_ context.Context, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	if apiErr.Retryable() {
		return nil
	}
	return err
}
