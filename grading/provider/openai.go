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

	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"

	"github.com/markmate/ensemble/grading/metrics"
)

// openaiAdapter implements Adapter using the OpenAI Chat Completions API.
type openaiAdapter struct {
	client  openai.Client
	model   string
	cfg     settings
	grading *metrics.Grading
}

// NewOpenAI creates an Adapter for an OpenAI model.
func NewOpenAI(client openai.Client, model string, opts ...Option) (Adapter, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &openaiAdapter{
		client:  client,
		model:   model,
		cfg:     cfg,
		grading: metrics.NewGrading(meterName),
	}, nil
}

func (a *openaiAdapter) Name() string  { return OpenAI }
func (a *openaiAdapter) Model() string { return a.model }

// Submit implements Adapter.
func (a *openaiAdapter) Submit(ctx context.Context, payload string) (*RawResponse, error) {
	log := clog.FromContext(ctx)
	start := time.Now()

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(payload),
		},
		Temperature:         openai.Float(a.cfg.temperature),
		MaxCompletionTokens: openai.Int(a.cfg.maxTokens),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyOpenAIError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, NewPermanent(OpenAI, errors.New("no choices in response"))
	}
	text := completion.Choices[0].Message.Content
	if text == "" {
		return nil, NewPermanent(OpenAI, errors.New("empty completion content"))
	}

	usage := Usage{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	cost := Cost(a.model, usage)
	a.grading.RecordCall(ctx, OpenAI, a.model, usage.InputTokens, usage.OutputTokens, cost)

	log.With("model", a.model).
		With("input_tokens", usage.InputTokens).
		With("output_tokens", usage.OutputTokens).
		Debug("OpenAI grading call completed")

	return &RawResponse{
		Text:    text,
		Usage:   usage,
		Cost:    cost,
		Latency: time.Since(start),
		Model:   a.model,
	}, nil
}

// classifyOpenAIError maps an OpenAI API failure onto the retry taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return NewTransient(OpenAI, err)
		default:
			return NewPermanent(OpenAI, err)
		}
	}
	return NewTransient(OpenAI, fmt.Errorf("transport failure: %w", err))
}
