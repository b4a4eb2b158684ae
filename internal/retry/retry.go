// Package retry wraps transient operations in bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scribe/internal/services"
)

// Policy bounds retry behavior for a transient operation.
type Policy struct {
	// MaxAttempts counts every invocation including the first. Values
	// below one behave as a single attempt.
	MaxAttempts int
	// InitialInterval seeds the exponential backoff. Zero keeps the
	// library default.
	InitialInterval time.Duration
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// the attempt budget, or ctx ends. Only errors classified retryable by
// services.IsTransient trigger another attempt.
func Do(ctx context.Context, policy Policy, op func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !services.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	b := backoff.WithMaxRetries(expo, uint64(attempts-1))
	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}
