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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"

	"github.com/markmate/ensemble/grading/metrics"
)

// anthropicAdapter implements Adapter using the Anthropic Messages API.
type anthropicAdapter struct {
	client  anthropic.Client
	model   string
	cfg     settings
	grading *metrics.Grading
}

// NewAnthropic creates an Adapter for a Claude model. The client is created
// by the caller so credentials and transport wiring stay outside the core.
func NewAnthropic(client anthropic.Client, model string, opts ...Option) (Adapter, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &anthropicAdapter{
		client:  client,
		model:   model,
		cfg:     cfg,
		grading: metrics.NewGrading(meterName),
	}, nil
}

func (a *anthropicAdapter) Name() string  { return Anthropic }
func (a *anthropicAdapter) Model() string { return a.model }

// Submit implements Adapter.
func (a *anthropicAdapter) Submit(ctx context.Context, payload string) (*RawResponse, error) {
	log := clog.FromContext(ctx)
	start := time.Now()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.cfg.maxTokens,
		Temperature: anthropic.Float(a.cfg.temperature),
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(payload),
			},
		}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyAnthropicError(err)
	}

	var text string
	for _, content := range message.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	if text == "" {
		return nil, NewPermanent(Anthropic, errors.New("no text content in response"))
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	cost := Cost(a.model, usage)
	a.grading.RecordCall(ctx, Anthropic, a.model, usage.InputTokens, usage.OutputTokens, cost)

	log.With("model", a.model).
		With("input_tokens", usage.InputTokens).
		With("output_tokens", usage.OutputTokens).
		Debug("Anthropic grading call completed")

	return &RawResponse{
		Text:    text,
		Usage:   usage,
		Cost:    cost,
		Latency: time.Since(start),
		Model:   a.model,
	}, nil
}

// classifyAnthropicError maps an Anthropic API failure onto the retry taxonomy.
// Rate limit, overloaded, and server errors are transient; authentication,
// invalid model, and policy rejections are permanent. Errors with no API
// status (transport failures) are treated as transient.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504, 529:
			return NewTransient(Anthropic, err)
		default:
			return NewPermanent(Anthropic, err)
		}
	}
	return NewTransient(Anthropic, fmt.Errorf("transport failure: %w", err))
}
