package embedder

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential backoff for provider calls
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the backoff used for remote embedding calls
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2.0,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	b.MaxElapsedTime = c.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

// retryWithBackoff runs fn until it succeeds, returns a permanent error, or the
// backoff gives up. retryable decides which errors are worth another attempt.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		result, err := fn()
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	return backoff.RetryWithData(op, cfg.backOff(ctx))
}
