// Package retry runs idempotent calls against the metastore and KMS with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how long and how often a call is retried.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxRetries caps the number of retries after the first attempt. Zero means no cap.
	MaxRetries uint64
}

// DefaultPolicy is used for metastore reads and KMS unwraps.
var DefaultPolicy = Policy{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  10 * time.Second,
	MaxRetries:      3,
}

// RetryOnAnyError retries every error except context cancellation.
func RetryOnAnyError(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Retrier retries calls for which shouldRetry reports true.
type Retrier struct {
	name        string
	policy      Policy
	shouldRetry func(error) bool
	logger      *slog.Logger
}

// New creates a Retrier. A nil shouldRetry retries any error except cancellation.
func New(name string, policy Policy, shouldRetry func(error) bool, logger *slog.Logger) *Retrier {
	if shouldRetry == nil {
		shouldRetry = RetryOnAnyError
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		name:        name,
		policy:      policy,
		shouldRetry: shouldRetry,
		logger:      logger,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// The last error is returned unchanged.
func Do[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		value, err := fn(ctx)
		if err != nil && !r.shouldRetry(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	notify := func(err error, next time.Duration) {
		r.logger.Debug("retrying call",
			slog.String("call", r.name),
			slog.Int("attempt", attempt),
			slog.Duration("next", next),
			slog.Any("error", err),
		)
	}

	return backoff.RetryNotifyWithData(operation, r.newBackOff(ctx), notify)
}

func (r *Retrier) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = r.policy.MaxElapsedTime

	var b backoff.BackOff = exp
	if r.policy.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, r.policy.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}
