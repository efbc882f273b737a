/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetSharesLimiterPerIdentity(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Get("anthropic", 60)
	b := r.Get("anthropic", 600)
	if a != b {
		t.Error("Get returned distinct limiters for one identity")
	}
	if c := r.Get("openai", 60); c == a {
		t.Error("Get shared a limiter across identities")
	}
}

func TestAcquireWithinBurst(t *testing.T) {
	t.Parallel()

	// A fresh bucket holds a full minute of quota; the first perMinute
	// acquisitions must not block.
	r := NewRegistry()
	l := r.Get("anthropic", 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire #%d = %v", i, err)
		}
	}
}

func TestAcquireTimesOut(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	l := r.Get("openai", 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire = %v", err)
	}

	// The bucket is drained; refill is one per minute, far past the deadline.
	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(short)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire on drained bucket = %v, want ErrTimeout", err)
	}
}

func TestAcquireCancellation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	l := r.Get("gemini", 1)

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- l.Acquire(cancelled) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Acquire after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestUnlimitedBucket(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	l := r.Get("anything", 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 1000; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire #%d on unlimited bucket = %v", i, err)
		}
	}
}
