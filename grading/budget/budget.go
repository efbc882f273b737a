/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package budget enforces the per-subject cost ceiling.
//
// Admission is two-phase: TryAdmit atomically reserves an estimated cost
// before dispatch, and Reconcile replaces the reservation with the actual
// cost on completion. Two concurrent reservations can never jointly exceed
// the remaining budget, and a dispatch already in flight when the ceiling is
// reached runs to completion while all later admissions are refused.
package budget

import (
	"context"
	"sync"

	"github.com/chainguard-dev/clog"
)

// Guard tracks cumulative spend for one grading session against a ceiling.
// The zero value is unusable; create one per session with NewGuard.
type Guard struct {
	mu       sync.Mutex
	ceiling  float64
	total    float64 // reconciled actual spend
	reserved float64 // in-flight reservations not yet reconciled
	calls    map[string]int
}

// NewGuard creates a Guard with the given dollar ceiling. The ledger lives
// for one session and is discarded with it.
func NewGuard(ceiling float64) *Guard {
	return &Guard{
		ceiling: ceiling,
		calls:   make(map[string]int),
	}
}

// TryAdmit reserves estimated dollars if the ledger plus all outstanding
// reservations stays within the ceiling. It returns false, leaving the
// ledger untouched, when the reservation would exceed it.
func (g *Guard) TryAdmit(estimated float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.total+g.reserved+estimated > g.ceiling {
		return false
	}
	g.reserved += estimated
	return true
}

// Reconcile replaces a prior reservation with the actual cost of the
// completed call and counts the call against its provider. Actuals that push
// the ledger past the ceiling are logged; they block future admission but
// are never retroactively undone.
func (g *Guard) Reconcile(ctx context.Context, providerName string, reserved, actual float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reserved -= reserved
	if g.reserved < 0 {
		g.reserved = 0
	}
	g.total += actual
	g.calls[providerName]++

	if g.total > g.ceiling {
		clog.FromContext(ctx).With("provider", providerName).
			With("total", g.total).
			With("ceiling", g.ceiling).
			Warn("Actual spend exceeded budget ceiling")
	}
}

// Total returns the reconciled spend so far.
func (g *Guard) Total() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

// Remaining returns the budget left for new admissions.
func (g *Guard) Remaining() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ceiling - g.total - g.reserved
}

// CallCounts returns a copy of the per-provider call counts for reporting.
func (g *Guard) CallCounts() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := make(map[string]int, len(g.calls))
	for k, v := range g.calls {
		counts[k] = v
	}
	return counts
}
