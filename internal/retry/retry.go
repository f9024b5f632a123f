// Package retry re-runs an operation with exponential backoff while its error
// is classified as transient.
package retry

import (
	"context"
	"math/rand"
	"time"
)

type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0
}

// DefaultConfig: 4 retries starting at 20ms, capped at 500ms.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   4,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do runs fn until it succeeds, returns an error for which retryable reports
// false, or the retries are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, cfg *Config, retryable func(error) bool, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}

		if attempt < cfg.MaxRetries {
			timer := time.NewTimer(applyJitter(delay, cfg.JitterFactor))
			select {
			case <-timer.C:
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, retryable, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
