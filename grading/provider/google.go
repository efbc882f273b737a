/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"

	"github.com/markmate/ensemble/grading/metrics"
)

// googleAdapter implements Adapter using Google's Generative AI SDK.
type googleAdapter struct {
	client  *genai.Client
	model   string
	cfg     settings
	grading *metrics.Grading
}

// NewGemini creates an Adapter for a Gemini model.
func NewGemini(client *genai.Client, model string, opts ...Option) (Adapter, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &googleAdapter{
		client:  client,
		model:   model,
		cfg:     cfg,
		grading: metrics.NewGrading(meterName),
	}, nil
}

func (a *googleAdapter) Name() string  { return Gemini }
func (a *googleAdapter) Model() string { return a.model }

// Submit implements Adapter.
func (a *googleAdapter) Submit(ctx context.Context, payload string) (*RawResponse, error) {
	log := clog.FromContext(ctx)
	start := time.Now()

	temp := float32(a.cfg.temperature)
	response, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(payload), &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(a.cfg.maxTokens),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGoogleError(err)
	}

	text := response.Text()
	if text == "" {
		return nil, NewPermanent(Gemini, errors.New("no text content in response"))
	}

	var usage Usage
	if response.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int64(response.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(response.UsageMetadata.CandidatesTokenCount),
		}
	}
	cost := Cost(a.model, usage)
	a.grading.RecordCall(ctx, Gemini, a.model, usage.InputTokens, usage.OutputTokens, cost)

	log.With("model", a.model).
		With("input_tokens", usage.InputTokens).
		With("output_tokens", usage.OutputTokens).
		Debug("Gemini grading call completed")

	return &RawResponse{
		Text:    text,
		Usage:   usage,
		Cost:    cost,
		Latency: time.Since(start),
		Model:   a.model,
	}, nil
}

// classifyGoogleError maps a Generative AI failure onto the retry taxonomy.
// The SDK does not expose a stable typed status for every failure mode, so
// classification matches on the rendered error, mirroring the quota and
// server error shapes the API produces.
func classifyGoogleError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "API key"),
		strings.Contains(errStr, "PERMISSION_DENIED"),
		strings.Contains(errStr, "UNAUTHENTICATED"),
		strings.Contains(errStr, "NOT_FOUND"),
		strings.Contains(errStr, "INVALID_ARGUMENT"),
		strings.Contains(errStr, "not found"):
		return NewPermanent(Gemini, err)
	case strings.Contains(errStr, "RESOURCE_EXHAUSTED"),
		strings.Contains(errStr, "Resource exhausted"),
		strings.Contains(errStr, "429"),
		strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "quota exceeded"),
		strings.Contains(errStr, "Overloaded"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "Internal error"),
		strings.Contains(errStr, "server error"):
		return NewTransient(Gemini, err)
	default:
		// Unknown failures lean transient so a flaky transport gets retried;
		// the retry budget bounds the damage when the guess is wrong.
		return NewTransient(Gemini, err)
	}
}
