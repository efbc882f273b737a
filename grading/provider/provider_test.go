/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestErrorClassificationHelpers(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	transient := NewTransient(Anthropic, base)
	permanent := NewPermanent(OpenAI, base)

	if !IsTransient(transient) || IsPermanent(transient) {
		t.Error("transient error misclassified")
	}
	if !IsPermanent(permanent) || IsTransient(permanent) {
		t.Error("permanent error misclassified")
	}
	if IsTransient(base) || IsPermanent(base) {
		t.Error("unclassified error matched a kind")
	}

	// Classification survives wrapping.
	wrapped := fmt.Errorf("run 2: %w", transient)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error lost its classification")
	}
	if !errors.Is(wrapped, transient) {
		t.Error("errors.Is lost the chain")
	}
}

func TestClassifyGoogleError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg       string
		transient bool
	}{
		{"Error 429: RESOURCE_EXHAUSTED: quota exceeded", true},
		{"rate limit exceeded for project", true},
		{"Error 503: The model is Overloaded", true},
		{"Internal error encountered", true},
		{"API key not valid", false},
		{"Error 403: PERMISSION_DENIED", false},
		{"Error 404: model not found", false},
		{"Error 400: INVALID_ARGUMENT", false},
		{"connection reset by peer", true}, // unknown leans transient
	}

	for _, tc := range tests {
		got := classifyGoogleError(errors.New(tc.msg))
		if IsTransient(got) != tc.transient {
			t.Errorf("classifyGoogleError(%q) transient = %v, want %v", tc.msg, IsTransient(got), tc.transient)
		}
	}
}

func TestClassifyTransportFailureIsTransient(t *testing.T) {
	t.Parallel()

	got := classifyAnthropicError(errors.New("dial tcp: connection refused"))
	if !IsTransient(got) {
		t.Errorf("transport failure classified %v, want transient", got)
	}
}

func TestPricingForLongestPrefix(t *testing.T) {
	t.Parallel()

	// gpt-4o-mini must resolve to the mini rate, not the gpt-4o family rate.
	mini := PricingFor("gpt-4o-mini-2024-07-18")
	if mini.InputPerMtok != 0.15 {
		t.Errorf("gpt-4o-mini input rate = %v, want 0.15", mini.InputPerMtok)
	}
	full := PricingFor("gpt-4o-2024-08-06")
	if full.InputPerMtok != 2.50 {
		t.Errorf("gpt-4o input rate = %v, want 2.50", full.InputPerMtok)
	}
}

func TestPricingForUnknownModel(t *testing.T) {
	t.Parallel()

	got := PricingFor("mystery-model-9000")
	if got != defaultPricing {
		t.Errorf("PricingFor(unknown) = %+v, want conservative default", got)
	}
}

func TestCost(t *testing.T) {
	t.Parallel()

	// 1M input at $3 plus 100k output at $15.
	got := Cost("claude-sonnet-4-5", Usage{InputTokens: 1_000_000, OutputTokens: 100_000})
	want := 4.50
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost() = %v, want %v", got, want)
	}
}

func TestEstimateCostScalesWithPayload(t *testing.T) {
	t.Parallel()

	short := EstimateCost("gpt-4o-mini", "tiny")
	long := EstimateCost("gpt-4o-mini", string(make([]byte, 40_000)))
	if long <= short {
		t.Errorf("EstimateCost did not grow with payload: short=%v long=%v", short, long)
	}
	if short <= 0 {
		t.Errorf("EstimateCost = %v, want positive from the completion estimate", short)
	}
}
