// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig configures reconnect behavior for streams and request retry
// for unary calls.
type RetryConfig struct {
	// MaxRetries is the number of reconnect attempts before giving up.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// BackoffFactor is the exponential growth factor.
	BackoffFactor float64
	// RetryableErrors decides which errors trigger a retry. Defaults to
	// IsRecoverable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: IsRecoverable,
	}
}

// delayFor returns the backoff delay before the given zero-based retry
// attempt: min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (c *RetryConfig) delayFor(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt)))
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}

func (c *RetryConfig) retryable(err error) bool {
	if c.RetryableErrors != nil {
		return c.RetryableErrors(err)
	}
	return IsRecoverable(err)
}

// withRetry executes fn with backoff. The first call is not counted as a
// retry; fn runs at most MaxRetries+1 times.
func withRetry(ctx context.Context, config *RetryConfig, operation string, fn func(context.Context) error) error {
	if config == nil || config.MaxRetries <= 0 {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.retryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-time.After(config.delayFor(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, config.MaxRetries+1, lastErr)
}
