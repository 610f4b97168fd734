// Package retry runs an operation a bounded number of times with jittered
// exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// MaxInterval caps a single wait.
	MaxInterval time.Duration

	// Retryable reports whether err is transient. nil retries every error.
	Retryable func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns three attempts starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do calls op until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. The last error from op is returned.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && cfg.Retryable != nil && !cfg.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	}
	if cfg.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			cfg.OnRetry(attempt, err, wait)
		}))
	}

	return backoff.Retry(ctx, operation, opts...)
}
