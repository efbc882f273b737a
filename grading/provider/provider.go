/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Known provider identities. New providers are added as new adapter variants,
// not by runtime probing.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Gemini    = "gemini"
)

// Usage captures token consumption reported by a provider for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// RawResponse is the unparsed outcome of one successful provider call.
type RawResponse struct {
	// Text is the provider's full textual reply.
	Text string

	// Usage holds token counts where the provider reports them.
	Usage Usage

	// Cost is the dollar cost of the call. When the provider does not report
	// pricing, this is estimated from token usage and the pricing table.
	Cost float64

	// Latency is the wall time of the call.
	Latency time.Duration

	// Model is the model identifier the call was made against.
	Model string
}

// ErrorKind classifies a provider failure for retry eligibility.
type ErrorKind string

const (
	// Transient covers network failures, 5xx responses, and remote rate
	// limiting. Transient errors are eligible for retry with backoff.
	Transient ErrorKind = "transient"

	// Permanent covers authentication failures, invalid model identifiers,
	// and content policy rejections. Permanent errors are never retried.
	Permanent ErrorKind = "permanent"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable provider failure.
func NewTransient(provider string, err error) *Error {
	return &Error{Kind: Transient, Provider: provider, Err: err}
}

// NewPermanent wraps err as a non-retryable provider failure.
func NewPermanent(provider string, err error) *Error {
	return &Error{Kind: Permanent, Provider: provider, Err: err}
}

// IsTransient reports whether err is a provider failure eligible for retry.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == Transient
}

// IsPermanent reports whether err is a provider failure that must not be retried.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == Permanent
}

// Adapter wraps one external assessment service behind a uniform capability.
// Implementations are stateless per request and safe for concurrent use.
type Adapter interface {
	// Name returns the provider identity (e.g. "anthropic").
	Name() string

	// Model returns the model identifier this adapter submits against.
	Model() string

	// Submit sends the rendered prompt payload and returns the raw reply.
	// The caller bounds the call with a context deadline; on failure the
	// returned error is an *Error classified Transient or Permanent, or a
	// context error when the deadline elapsed.
	Submit(ctx context.Context, payload string) (*RawResponse, error)
}
