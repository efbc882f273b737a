/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package observe exports session progress as Prometheus metrics.
package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/markmate/ensemble/grading/schedule"
	"github.com/markmate/ensemble/grading/session"
)

// PrometheusListener implements session.Listener, counting sessions and
// runs and tracking spend. Register one per process and share it across
// orchestrators.
type PrometheusListener struct {
	sessions   *prometheus.CounterVec
	runs       *prometheus.CounterVec
	cost       *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	marks      prometheus.Histogram
	confidence prometheus.Histogram
}

// NewPrometheusListener registers grading metrics with reg.
func NewPrometheusListener(reg prometheus.Registerer) *PrometheusListener {
	factory := promauto.With(reg)
	return &PrometheusListener{
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_sessions_total",
			Help: "Completed grading sessions by terminal phase.",
		}, []string{"phase"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_runs_total",
			Help: "Completed grading runs by provider and status.",
		}, []string{"provider", "status"}),
		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_run_cost_dollars_total",
			Help: "Cumulative provider spend in dollars.",
		}, []string{"provider"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_run_duration_seconds",
			Help:    "Wall-clock duration of grading runs, including retries.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"provider"}),
		marks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_session_mark_fraction",
			Help:    "Final session marks as a fraction of the maximum mark.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_session_confidence",
			Help:    "Final session confidence values.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// PhaseChanged implements session.Listener.
func (p *PrometheusListener) PhaseChanged(_ context.Context, _ string, phase session.Phase) {
	switch phase {
	case session.PhaseDone, session.PhaseFailed:
		p.sessions.WithLabelValues(string(phase)).Inc()
	}
}

// RunCompleted implements session.Listener.
func (p *PrometheusListener) RunCompleted(_ context.Context, _ string, a schedule.Assessment) {
	p.runs.WithLabelValues(a.Provider, string(a.Status)).Inc()
	p.cost.WithLabelValues(a.Provider).Add(a.Cost)
	p.latency.WithLabelValues(a.Provider).Observe(a.Latency.Seconds())
}

// SessionCompleted implements session.Listener.
func (p *PrometheusListener) SessionCompleted(_ context.Context, result *session.Result) {
	if result.MaxMark > 0 {
		p.marks.Observe(result.Mark / result.MaxMark)
	}
	p.confidence.Observe(result.Confidence)
}
