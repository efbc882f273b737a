/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package session orchestrates one grading session end to end.
//
// A session takes one subject through payload rendering, fan-out to every
// configured grader, and statistical aggregation into a single verdict. The
// orchestrator is reusable across subjects; per-session state (the cost
// ledger, assessments, lifecycle phase) lives only inside Grade.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/markmate/ensemble/grading/aggregate"
	"github.com/markmate/ensemble/grading/budget"
	"github.com/markmate/ensemble/grading/config"
	"github.com/markmate/ensemble/grading/prompt"
	"github.com/markmate/ensemble/grading/provider"
	"github.com/markmate/ensemble/grading/ratelimit"
	"github.com/markmate/ensemble/grading/schedule"
)

// Subject is one work product to grade.
type Subject struct {
	// ID identifies the subject in results and logs (e.g. a student ID).
	ID string

	// Rubric is the grading criteria shown to every grader.
	Rubric string

	// Content is the work product being graded.
	Content string
}

// Result is the final verdict of one grading session.
type Result struct {
	SessionID string  `json:"session_id"`
	SubjectID string  `json:"subject_id"`
	Mark      float64 `json:"mark"`
	MaxMark   float64 `json:"max_mark"`
	Feedback  string  `json:"feedback"`

	// Confidence reflects how much of the run budget succeeded and how much
	// the graders agreed, in [0,1].
	Confidence float64          `json:"confidence"`
	Method     aggregate.Method `json:"method"`

	// Degraded is true when the verdict was computed from fewer successful
	// runs than configured.
	Degraded bool `json:"degraded"`

	Assessments []schedule.Assessment `json:"assessments"`
	TotalCost   float64               `json:"total_cost"`
	CallCounts  map[string]int        `json:"call_counts"`
	Elapsed     time.Duration         `json:"elapsed"`
}

// Orchestrator runs grading sessions against a fixed configuration.
type Orchestrator struct {
	cfg       *config.Config
	method    aggregate.Method
	reduction aggregate.Reduction
	adapters  map[string]provider.Adapter
	limits    *ratelimit.Registry
	listeners []Listener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAdapter injects a provider adapter for the named grader, overriding
// the client the orchestrator would otherwise construct.
func WithAdapter(graderName string, a provider.Adapter) Option {
	return func(o *Orchestrator) {
		o.adapters[graderName] = a
	}
}

// WithListener registers a progress listener.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		o.listeners = append(o.listeners, l)
	}
}

// WithRateLimits uses the given limiter registry instead of the process-wide
// default. Sessions sharing a registry share provider admission rates.
func WithRateLimits(r *ratelimit.Registry) Option {
	return func(o *Orchestrator) {
		o.limits = r
	}
}

// New validates the configuration and builds provider clients for every
// grader that was not injected via WithAdapter. A configuration the session
// could not run with is rejected here, before anything is dispatched.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grading config: %w", err)
	}
	method, err := aggregate.ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}
	reduction, err := aggregate.ParseReduction(cfg.RunReduction)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		method:    method,
		reduction: reduction,
		adapters:  make(map[string]provider.Adapter, len(cfg.Graders)),
		limits:    ratelimit.Default,
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, g := range cfg.Graders {
		if _, ok := o.adapters[g.Name]; ok {
			continue
		}
		adapter, err := provider.New(ctx, g.Provider, g.Model)
		if err != nil {
			return nil, fmt.Errorf("building adapter for grader %q: %w", g.Name, err)
		}
		o.adapters[g.Name] = adapter
	}
	return o, nil
}

// Grade runs one complete grading session for the subject. It returns an
// error only when no verdict could be produced at all; partial provider
// failures degrade the result instead.
func (o *Orchestrator) Grade(ctx context.Context, subject Subject) (*Result, error) {
	sessionID := uuid.NewString()
	log := clog.FromContext(ctx).With("session", sessionID).With("subject", subject.ID)
	ctx = clog.WithLogger(ctx, log)
	start := time.Now()

	o.setPhase(ctx, sessionID, PhasePending)

	payload, err := prompt.RenderGrading(subject.Rubric, subject.Content, o.cfg.MaxMark)
	if err != nil {
		o.setPhase(ctx, sessionID, PhaseFailed)
		return nil, fmt.Errorf("rendering grading payload: %w", err)
	}

	guard := budget.NewGuard(o.cfg.MaxCost)
	sched, err := schedule.New(o.cfg, o.adapters, guard, o.limits, func(a schedule.Assessment) {
		o.notifyRun(ctx, sessionID, a)
	})
	if err != nil {
		o.setPhase(ctx, sessionID, PhaseFailed)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SessionDeadline.Std())
	defer cancel()

	log.With("graders", len(o.cfg.Graders)).
		With("runs", o.cfg.TotalRuns()).
		Info("Dispatching grading session")
	o.setPhase(ctx, sessionID, PhaseDispatching)

	assessments, err := sched.Dispatch(ctx, payload)
	if err != nil {
		o.setPhase(ctx, sessionID, PhaseFailed)
		return nil, fmt.Errorf("dispatching runs: %w", err)
	}
	o.setPhase(ctx, sessionID, PhaseCollecting)

	groups, succeeded := buildGroups(o.cfg, assessments)
	total := o.cfg.TotalRuns()

	o.setPhase(ctx, sessionID, PhaseAggregating)
	if succeeded == 0 {
		log.Error("All grading runs failed")
		o.setPhase(ctx, sessionID, PhaseFailed)
		return nil, fmt.Errorf("session %s: %w", sessionID, aggregate.ErrNoValidAssessments)
	}

	opts := aggregate.Options{
		Method:          o.method,
		Reduction:       o.reduction,
		TrimFraction:    o.cfg.TrimFraction,
		MaxMark:         o.cfg.MaxMark,
		FailurePenalty:  o.cfg.FailurePenalty,
		VariancePenalty: o.cfg.VariancePenalty,
	}
	outcome, err := aggregate.Combine(groups, total, total-succeeded, opts)
	if err != nil {
		o.setPhase(ctx, sessionID, PhaseFailed)
		return nil, fmt.Errorf("aggregating session %s: %w", sessionID, err)
	}

	result := &Result{
		SessionID:   sessionID,
		SubjectID:   subject.ID,
		Mark:        outcome.Mark,
		MaxMark:     o.cfg.MaxMark,
		Feedback:    outcome.Feedback,
		Confidence:  outcome.Confidence,
		Method:      outcome.Method,
		Degraded:    succeeded < total,
		Assessments: assessments,
		TotalCost:   guard.Total(),
		CallCounts:  guard.CallCounts(),
		Elapsed:     time.Since(start),
	}

	log.With("mark", result.Mark).
		With("confidence", result.Confidence).
		With("degraded", result.Degraded).
		With("cost", result.TotalCost).
		Info("Grading session complete")
	o.notifyDone(ctx, result)
	o.setPhase(ctx, sessionID, PhaseDone)
	return result, nil
}

// buildGroups collects the successful runs per grader in configuration
// order. Each grader's representative feedback is the feedback of the run
// whose score sits closest to the grader's average run score, so multi-run
// graders report feedback that matches the score they contribute.
func buildGroups(cfg *config.Config, assessments []schedule.Assessment) ([]aggregate.GraderScores, int) {
	byGrader := make(map[string][]schedule.Assessment, len(cfg.Graders))
	succeeded := 0
	for _, a := range assessments {
		if a.Status != schedule.Succeeded {
			continue
		}
		succeeded++
		byGrader[a.Grader] = append(byGrader[a.Grader], a)
	}

	groups := make([]aggregate.GraderScores, 0, len(cfg.Graders))
	for _, g := range cfg.Graders {
		runs := byGrader[g.Name]
		if len(runs) == 0 {
			continue
		}
		scores := make([]float64, len(runs))
		for i, a := range runs {
			scores[i] = a.Score
		}

		effective := scores[0]
		if len(scores) > 1 {
			var sum float64
			for _, s := range scores {
				sum += s
			}
			effective = sum / float64(len(scores))
		}
		feedback := runs[0].Feedback
		best := math.Abs(runs[0].Score - effective)
		for _, a := range runs[1:] {
			if d := math.Abs(a.Score - effective); d < best {
				best = d
				feedback = a.Feedback
			}
		}

		groups = append(groups, aggregate.GraderScores{
			Name:     g.Name,
			Weight:   g.Weight,
			Primary:  g.PrimaryFeedback,
			Runs:     scores,
			Feedback: feedback,
		})
	}
	return groups, succeeded
}
