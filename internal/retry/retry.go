// Package retry runs record store calls with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config configures retry behavior
type Config struct {
	// MaxAttempts includes the first call
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether a failure is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each wait
	OnRetry func(err error, wait time.Duration)
}

// DefaultConfig returns 3 attempts starting at 100ms, capped at 2s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do calls op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error is returned unwrapped.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
	}
	if cfg.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(cfg.OnRetry))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && cfg.Retryable != nil && !cfg.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// Run is Do for operations without a result
func Run(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
