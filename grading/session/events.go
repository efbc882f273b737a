/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"

	"github.com/markmate/ensemble/grading/schedule"
)

// Phase is a stage in the session lifecycle. Phases only move forward:
// Pending, Dispatching, Collecting, Aggregating, then Done or Failed.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseDispatching Phase = "dispatching"
	PhaseCollecting  Phase = "collecting"
	PhaseAggregating Phase = "aggregating"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Listener observes session progress. Implementations are called
// synchronously and must be safe for concurrent use: RunCompleted fires from
// dispatch worker goroutines. A session with no listeners behaves
// identically to one with many.
type Listener interface {
	// PhaseChanged fires on every lifecycle transition.
	PhaseChanged(ctx context.Context, sessionID string, phase Phase)

	// RunCompleted fires once per grading run, as it reaches a terminal
	// status.
	RunCompleted(ctx context.Context, sessionID string, a schedule.Assessment)

	// SessionCompleted fires once with the final result of a session that
	// reached Done.
	SessionCompleted(ctx context.Context, result *Result)
}

func (o *Orchestrator) setPhase(ctx context.Context, sessionID string, phase Phase) {
	for _, l := range o.listeners {
		l.PhaseChanged(ctx, sessionID, phase)
	}
}

func (o *Orchestrator) notifyRun(ctx context.Context, sessionID string, a schedule.Assessment) {
	for _, l := range o.listeners {
		l.RunCompleted(ctx, sessionID, a)
	}
}

func (o *Orchestrator) notifyDone(ctx context.Context, result *Result) {
	for _, l := range o.listeners {
		l.SessionCompleted(ctx, result)
	}
}
