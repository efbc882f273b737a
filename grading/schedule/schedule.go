/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schedule fans grading runs out to providers and collects results.
//
// The scheduler owns the dispatch mechanics of a session: budget admission,
// rate limiting, per-call timeouts, and retries of transient failures. Every
// configured run produces exactly one Assessment with a terminal status, so
// callers can always account for the full run budget. Results come back in
// configuration order regardless of completion order.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/markmate/ensemble/grading/budget"
	"github.com/markmate/ensemble/grading/config"
	"github.com/markmate/ensemble/grading/parse"
	"github.com/markmate/ensemble/grading/provider"
	"github.com/markmate/ensemble/grading/ratelimit"
	"github.com/markmate/ensemble/grading/retry"
)

// Status is the terminal disposition of one grading run.
type Status string

const (
	// Succeeded means the provider replied and a score was extracted.
	Succeeded Status = "succeeded"
	// ParseFailed means the provider replied but no usable score was found.
	ParseFailed Status = "parse_failed"
	// ProviderFailed means the provider call failed permanently or exhausted
	// its retry budget.
	ProviderFailed Status = "provider_failed"
	// TimedOut means the session deadline expired before the run completed.
	TimedOut Status = "timed_out"
	// Skipped means the run was refused admission by the cost budget and
	// never dispatched.
	Skipped Status = "skipped"
)

// Assessment is the full record of one grading run.
type Assessment struct {
	Grader   string        `json:"grader"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Run      int           `json:"run"`
	Status   Status        `json:"status"`
	Score    float64       `json:"score"`
	Feedback string        `json:"feedback,omitempty"`
	// SelfConfidence is the grader's own reported confidence, when present.
	SelfConfidence float64       `json:"self_confidence"`
	Cost           float64       `json:"cost"`
	Latency        time.Duration `json:"latency"`
	Err            string        `json:"error,omitempty"`
}

// Scheduler dispatches the configured runs of one session.
type Scheduler struct {
	cfg      *config.Config
	adapters map[string]provider.Adapter
	guard    *budget.Guard
	limits   *ratelimit.Registry

	// onRun, when set, observes each assessment as it completes. It is
	// called from worker goroutines and must be safe for concurrent use.
	onRun func(Assessment)
}

// New creates a Scheduler. adapters maps grader names to their provider
// adapters and must cover every configured grader.
func New(cfg *config.Config, adapters map[string]provider.Adapter, guard *budget.Guard, limits *ratelimit.Registry, onRun func(Assessment)) (*Scheduler, error) {
	for _, g := range cfg.Graders {
		if _, ok := adapters[g.Name]; !ok {
			return nil, fmt.Errorf("no adapter for grader %q", g.Name)
		}
	}
	return &Scheduler{
		cfg:      cfg,
		adapters: adapters,
		guard:    guard,
		limits:   limits,
		onRun:    onRun,
	}, nil
}

// Dispatch sends the payload to every configured grader for its configured
// number of runs and blocks until all runs reach a terminal status. The
// returned slice holds one Assessment per configured run, ordered by grader
// configuration order and then run index.
func (s *Scheduler) Dispatch(ctx context.Context, payload string) ([]Assessment, error) {
	results := make([]Assessment, s.cfg.TotalRuns())

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.MaxConcurrent)

	idx := 0
	for _, grader := range s.cfg.Graders {
		for run := 0; run < grader.Runs; run++ {
			slot, grader, run := idx, grader, run
			eg.Go(func() error {
				a := s.executeRun(ctx, grader, run, payload)
				results[slot] = a
				if s.onRun != nil {
					s.onRun(a)
				}
				return nil
			})
			idx++
		}
	}

	// Workers never return errors; every failure is an Assessment.
	_ = eg.Wait()
	return results, nil
}

// executeRun takes one run from admission through parsing to its terminal
// Assessment. It never returns an error: all failure modes are statuses.
func (s *Scheduler) executeRun(ctx context.Context, grader config.GraderConfig, run int, payload string) Assessment {
	log := clog.FromContext(ctx).With("grader", grader.Name).With("run", run)
	a := Assessment{
		Grader:   grader.Name,
		Provider: grader.Provider,
		Model:    grader.Model,
		Run:      run,
	}

	adapter := s.adapters[grader.Name]
	estimated := provider.EstimateCost(grader.Model, payload)
	if !s.guard.TryAdmit(estimated) {
		log.With("estimated", estimated).
			With("remaining", s.guard.Remaining()).
			Warn("Run refused admission, cost budget exhausted")
		a.Status = Skipped
		a.Err = "cost budget exhausted"
		return a
	}

	limiter := s.limits.Get(grader.Provider, grader.RateLimit)
	start := time.Now()

	resp, err := retry.Do(ctx, retry.ForAttempts(grader.RetryAttempts),
		fmt.Sprintf("grading call to %s", grader.Name),
		func(err error) bool {
			return provider.IsTransient(err) && ctx.Err() == nil
		},
		func() (*provider.RawResponse, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, grader.Timeout.Std())
			defer cancel()
			if err := limiter.Acquire(attemptCtx); err != nil {
				if ctx.Err() == nil {
					// A full bucket this attempt may have drained by the
					// next; rate limit waits retry like any transient.
					return nil, provider.NewTransient(grader.Provider, err)
				}
				return nil, err
			}
			resp, err := adapter.Submit(attemptCtx, payload)
			if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
				// A single slow call is retryable; only the session
				// deadline is terminal.
				return nil, provider.NewTransient(grader.Provider,
					fmt.Errorf("call exceeded %s timeout: %w", grader.Timeout.Std(), err))
			}
			return resp, err
		})
	a.Latency = time.Since(start)

	if err != nil {
		// Failed calls release their reservation but still count toward the
		// provider call tally.
		s.guard.Reconcile(ctx, grader.Provider, estimated, 0)
		if ctx.Err() != nil {
			a.Status = TimedOut
			a.Err = "session deadline exceeded"
			return a
		}
		log.With("error", err.Error()).Warn("Grading run failed")
		a.Status = ProviderFailed
		a.Err = err.Error()
		return a
	}

	a.Cost = resp.Cost
	s.guard.Reconcile(ctx, grader.Provider, estimated, resp.Cost)

	parsed, err := parse.Parse(resp.Text, s.cfg.MaxMark)
	if err != nil {
		// The reply was paid for; a second call would not make it parseable.
		log.With("error", err.Error()).Warn("Grading reply could not be parsed")
		a.Status = ParseFailed
		a.Err = err.Error()
		return a
	}

	a.Status = Succeeded
	a.Score = parsed.Mark
	a.Feedback = parsed.Feedback
	a.SelfConfidence = parsed.Confidence
	return a
}
