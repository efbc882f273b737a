/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry implements the backoff policy for transient grading failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config configures retry behavior for provider calls.
type Config struct {
	// Attempts is the maximum number of retry attempts after the first try.
	// 0 means do not retry at all.
	Attempts int
	// BaseDelay is the initial backoff duration, doubled on each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// MaxJitter is the maximum random jitter added to each backoff.
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c Config) Validate() error {
	if c.Attempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}
	if c.BaseDelay < 0 {
		return errors.New("base delay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("max delay cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// ForAttempts returns the standard grading retry policy with the given
// attempt budget. Delays start at one second because provider rate limits
// rarely clear faster than that.
func ForAttempts(attempts int) Config {
	return Config{
		Attempts:  attempts,
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		MaxJitter: 500 * time.Millisecond,
	}
}

// Delay computes the backoff before retry attempt (0-based), with jitter.
func (c Config) Delay(attempt int) time.Duration {
	d := min(c.BaseDelay<<attempt, c.MaxDelay)
	if c.MaxJitter > 0 {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// Do executes fn, retrying on errors the isRetryable predicate accepts, with
// exponential backoff between attempts. The context bounds the whole loop:
// cancellation during a backoff sleep returns the context error.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.Attempts; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.Attempts {
			break
		}

		delay := cfg.Delay(attempt)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_attempts", cfg.Attempts).
			With("delay", delay).
			With("error", lastErr.Error()).
			Warn("Transient grading failure, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.Attempts, lastErr)
}
