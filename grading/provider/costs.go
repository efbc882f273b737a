/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import "strings"

// Pricing holds per-model dollar rates, expressed per million tokens.
type Pricing struct {
	InputPerMtok  float64
	OutputPerMtok float64
}

// pricingTable maps model identifier prefixes to published rates. Lookup is
// longest-prefix so dated model revisions resolve to their family.
var pricingTable = map[string]Pricing{
	"claude-opus":      {InputPerMtok: 15.00, OutputPerMtok: 75.00},
	"claude-sonnet":    {InputPerMtok: 3.00, OutputPerMtok: 15.00},
	"claude-haiku":     {InputPerMtok: 0.80, OutputPerMtok: 4.00},
	"claude-3-5-haiku": {InputPerMtok: 0.80, OutputPerMtok: 4.00},
	"gpt-4o":           {InputPerMtok: 2.50, OutputPerMtok: 10.00},
	"gpt-4o-mini":      {InputPerMtok: 0.15, OutputPerMtok: 0.60},
	"gpt-4.1":          {InputPerMtok: 2.00, OutputPerMtok: 8.00},
	"gpt-4.1-mini":     {InputPerMtok: 0.40, OutputPerMtok: 1.60},
	"gemini-2.5-pro":   {InputPerMtok: 1.25, OutputPerMtok: 10.00},
	"gemini-2.5-flash": {InputPerMtok: 0.30, OutputPerMtok: 2.50},
	"gemini-1.5-pro":   {InputPerMtok: 1.25, OutputPerMtok: 5.00},
}

// defaultPricing is a conservative rate for models absent from the table, so
// budget reservations err on the side of admitting fewer runs.
var defaultPricing = Pricing{InputPerMtok: 5.00, OutputPerMtok: 20.00}

// estimatedOutputTokens is the assumed completion size for cost estimation
// before a call is made.
const estimatedOutputTokens = 500

// PricingFor returns the rates for a model, falling back to a conservative
// default for unknown models.
func PricingFor(model string) Pricing {
	best := ""
	for prefix := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPricing
	}
	return pricingTable[best]
}

// Cost computes the dollar cost of a call from reported token usage.
func Cost(model string, usage Usage) float64 {
	p := PricingFor(model)
	return float64(usage.InputTokens)/1e6*p.InputPerMtok +
		float64(usage.OutputTokens)/1e6*p.OutputPerMtok
}

// EstimateCost predicts the dollar cost of submitting payload to model,
// using the rough four-characters-per-token heuristic for the prompt and a
// fixed completion estimate. Used for budget reservation before dispatch.
func EstimateCost(model, payload string) float64 {
	return Cost(model, Usage{
		InputTokens:  int64(len(payload) / 4),
		OutputTokens: estimatedOutputTokens,
	})
}
