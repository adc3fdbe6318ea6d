// Package utils provides shared helpers for the racing gateway.
//
// The retry helper implements exponential backoff with a pluggable
// outcome classifier, shared by every upstream call site (OAuth
// exchange, lookup, profile fetch).
package utils

import (
	"context"
	"fmt"
	"time"

	"racing-gateway/internal/common/errors"
)

// Decision is the classifier verdict for a failed attempt.
type Decision int

const (
	// DecisionRetry means the attempt failed transiently and should be retried
	DecisionRetry Decision = iota
	// DecisionFatal means retrying cannot help; fail immediately
	DecisionFatal
)

// RetryConfig holds configuration for retry operations with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (caps exponential growth)
	MaxDelay time.Duration

	// BackoffFactor is the multiplier for exponential backoff (e.g., 2.0 doubles delay)
	BackoffFactor float64

	// Classify maps a failed attempt to a retry decision.
	// If nil, all errors are considered retryable.
	Classify func(error) Decision
}

// DefaultRetryConfig returns the retry discipline used against the upstream API:
// 3 attempts, 1 second initial delay, doubling each attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry strategy.
//
// Attempts the function up to MaxAttempts times. Between attempts it sleeps
// for the computed backoff delay, or for the server-supplied retry-after hint
// when the error carries one. A DecisionFatal verdict from the classifier
// short-circuits the loop and returns the error unchanged.
//
// On exhaustion the last error is returned as-is so callers can still
// classify it (rate-limited vs upstream failure).
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Classify != nil && config.Classify(err) == DecisionFatal {
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		// Server-supplied hint overrides the computed backoff
		wait := delay
		if hint, ok := errors.RetryAfterHint(err); ok {
			wait = hint
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}

	return lastErr
}
