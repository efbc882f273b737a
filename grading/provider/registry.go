/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// meterName is the unified meter for all adapter metrics; provider and model
// are recorded as dimensions.
const meterName = "markmate.ensemble.grading"

// New creates an Adapter for the given provider identity and model, using
// credentials from the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY,
// GEMINI_API_KEY). New providers are added as new variants here, not by
// runtime attribute probing.
func New(ctx context.Context, providerID, model string, opts ...Option) (Adapter, error) {
	switch providerID {
	case Anthropic:
		return NewAnthropic(anthropic.NewClient(), model, opts...)

	case OpenAI:
		return NewOpenAI(openai.NewClient(), model, opts...)

	case Gemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Google AI client: %w", err)
		}
		return NewGemini(client, model, opts...)

	default:
		return nil, fmt.Errorf("unsupported provider: %q (expected %s, %s, or %s)",
			providerID, Anthropic, OpenAI, Gemini)
	}
}
