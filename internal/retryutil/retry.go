// Package retryutil provides exponential-backoff retry with jitter,
// used by the LLM backends. The evaluator cascade keeps its own retry
// loop and does not use this package.
package retryutil

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts including the
	// initial one. Zero means one attempt with no retries.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Multiplier scales the delay after each retry (>1 for exponential
	// backoff).
	Multiplier float64

	// Jitter is the fraction of randomness added to each delay, in
	// [0, 1].
	Jitter float64

	// RetryableFunc decides whether an error should trigger a retry.
	// Nil means retry every error.
	RetryableFunc func(error) bool
}

// Do runs fn, retrying according to cfg until it succeeds, the retry
// budget is exhausted, ctx is cancelled, or RetryableFunc rejects the
// error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryableFunc != nil && !cfg.RetryableFunc(err) {
			return err
		}
		if attempt >= maxAttempts {
			return err
		}

		actualDelay := delay
		if cfg.Jitter > 0 {
			jitterFactor := 1.0 + (rand.Float64()*2.0-1.0)*cfg.Jitter
			actualDelay = time.Duration(float64(actualDelay) * jitterFactor)
		}
		if cfg.MaxDelay > 0 && actualDelay > cfg.MaxDelay {
			actualDelay = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(actualDelay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return lastErr
}

// DefaultConfig returns sensible exponential-backoff defaults: 3
// attempts, 100ms initial delay, 2x multiplier, 10% jitter, 30s cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}
