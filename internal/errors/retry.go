package errors

import (
	"context"
	"time"
)

// RetryConfig configures bounded-backoff retry behavior.
type RetryConfig struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay grows after each retry.
	Multiplier float64
}

// DefaultRetryConfig returns the standard bounded backoff used for
// transient store failures: 5 attempts, exponential from 50ms to 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes fn with exponential backoff. Only Transient errors are
// retried; any other category returns immediately. If the context is
// cancelled the context error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == cfg.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
