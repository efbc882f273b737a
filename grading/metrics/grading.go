/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Grading provides OpenTelemetry metrics for grader calls: token usage and
// dollar cost, dimensioned by provider and model. Metric creation degrades
// gracefully: a counter that fails to initialize is replaced by a no-op.
type Grading struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	callCost         metric.Float64Counter
	calls            metric.Int64Counter
}

// NewGrading creates a Grading metrics instance with the specified meter name.
// The meter name should be unified across all adapters (e.g.
// "markmate.ensemble.grading") with provider and model as dimensions.
func NewGrading(meterName string) *Grading {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("grading.token.prompt",
		metric.WithDescription("The number of prompt tokens used by grading calls"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("grading.token.completion",
		metric.WithDescription("The number of completion tokens used by grading calls"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	callCost, err := meter.Float64Counter("grading.call.cost",
		metric.WithDescription("The dollar cost of grading calls"),
		metric.WithUnit("{USD}"))
	if err != nil {
		slog.Warn("Failed to create call cost counter, metrics will be disabled", "error", err, "meter", meterName)
		callCost = noop.Float64Counter{}
	}

	calls, err := meter.Int64Counter("grading.calls",
		metric.WithDescription("The number of grading calls made"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create calls counter, metrics will be disabled", "error", err, "meter", meterName)
		calls = noop.Int64Counter{}
	}

	return &Grading{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		callCost:         callCost,
		calls:            calls,
	}
}

// RecordCall records one completed provider call with its token usage and cost.
func (m *Grading) RecordCall(ctx context.Context, provider, model string, promptTokens, completionTokens int64, cost float64) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	m.calls.Add(ctx, 1, attrs)
	m.promptTokens.Add(ctx, promptTokens, attrs)
	m.completionTokens.Add(ctx, completionTokens, attrs)
	m.callCost.Add(ctx, cost, attrs)
}
