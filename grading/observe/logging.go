/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package observe

import (
	"context"

	"github.com/chainguard-dev/clog"

	"github.com/markmate/ensemble/grading/schedule"
	"github.com/markmate/ensemble/grading/session"
)

// LogListener implements session.Listener with structured logs, for callers
// that want per-run visibility without a metrics backend.
type LogListener struct{}

// PhaseChanged implements session.Listener.
func (LogListener) PhaseChanged(ctx context.Context, sessionID string, phase session.Phase) {
	clog.FromContext(ctx).With("session", sessionID).
		With("phase", phase).
		Debug("Session phase changed")
}

// RunCompleted implements session.Listener.
func (LogListener) RunCompleted(ctx context.Context, sessionID string, a schedule.Assessment) {
	log := clog.FromContext(ctx).With("session", sessionID).
		With("grader", a.Grader).
		With("run", a.Run).
		With("status", a.Status).
		With("latency", a.Latency)
	if a.Status == schedule.Succeeded {
		log.With("score", a.Score).With("cost", a.Cost).Info("Grading run completed")
		return
	}
	log.With("error", a.Err).Warn("Grading run did not succeed")
}

// SessionCompleted implements session.Listener.
func (LogListener) SessionCompleted(ctx context.Context, result *session.Result) {
	clog.FromContext(ctx).With("session", result.SessionID).
		With("mark", result.Mark).
		With("confidence", result.Confidence).
		With("degraded", result.Degraded).
		With("cost", result.TotalCost).
		Info("Session verdict recorded")
}

var _ session.Listener = LogListener{}
