/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ratelimit provides per-provider request admission control.
//
// Each provider identity gets a token bucket replenished at its configured
// requests-per-minute rate. Buckets are shared across concurrent grading
// sessions so two sessions hitting the same provider respect one combined
// limit. Every dispatch, including retries, must acquire a slot.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned when the caller's deadline elapses before a slot
// becomes available.
var ErrTimeout = errors.New("rate limit wait timed out")

// Limiter admits requests for one provider identity.
type Limiter struct {
	name string
	lim  *rate.Limiter
}

// Acquire blocks until a request slot is available or ctx's deadline elapses.
// Waiters are not served strictly FIFO, but the bucket's steady refill bounds
// every wait by the queue length over the refill rate.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrTimeout, l.name, err)
	}
	return nil
}

// Registry hands out limiters keyed by provider identity. A limiter is
// created on first use with the rate then requested; later requests for the
// same identity share it regardless of their configured rate, so sessions
// cannot widen each other's limits.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter for a provider identity, creating it with the
// given requests-per-minute capacity on first use. A non-positive perMinute
// yields an effectively unlimited bucket.
func (r *Registry) Get(name string, perMinute int) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}

	var lim *rate.Limiter
	if perMinute <= 0 {
		lim = rate.NewLimiter(rate.Inf, 1)
	} else {
		// Bucket capacity equals one minute of quota; refill is spread
		// evenly so a full bucket drains no faster than the configured rate.
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/time.Minute.Seconds()), perMinute)
	}
	l := &Limiter{name: name, lim: lim}
	r.limiters[name] = l
	return l
}

// Default is the process-wide registry shared by all sessions. Its lifetime
// is the process; buckets reset only at process restart.
var Default = NewRegistry()
