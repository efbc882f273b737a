/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/markmate/ensemble/grading/budget"
	"github.com/markmate/ensemble/grading/config"
	"github.com/markmate/ensemble/grading/provider"
	"github.com/markmate/ensemble/grading/ratelimit"
)

// fakeAdapter scripts provider behavior per call.
type fakeAdapter struct {
	name  string
	model string

	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (*provider.RawResponse, error)
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Model() string { return f.model }

func (f *fakeAdapter) Submit(ctx context.Context, _ string) (*provider.RawResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call)
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func reply(text string) *provider.RawResponse {
	return &provider.RawResponse{
		Text:  text,
		Usage: provider.Usage{InputTokens: 100, OutputTokens: 50},
		Cost:  0.01,
		Model: "fake-model",
	}
}

func testConfig(graders ...config.GraderConfig) *config.Config {
	return &config.Config{
		Graders:         graders,
		Method:          "mean",
		RunReduction:    "mean",
		TrimFraction:    0.2,
		MaxMark:         100,
		MaxCost:         1.00,
		SessionDeadline: config.Duration(time.Minute),
		MaxConcurrent:   4,
		FailurePenalty:  0.5,
		VariancePenalty: 1.0,
	}
}

func testGrader(name string) config.GraderConfig {
	return config.GraderConfig{
		Name:          name,
		Provider:      provider.Anthropic,
		Model:         "fake-model",
		Weight:        1.0,
		Runs:          1,
		RateLimit:     0, // unlimited in tests
		RetryAttempts: 1,
		Timeout:       config.Duration(time.Minute),
	}
}

func newScheduler(t *testing.T, cfg *config.Config, adapters map[string]provider.Adapter, guard *budget.Guard) *Scheduler {
	t.Helper()
	s, err := New(cfg, adapters, guard, ratelimit.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
			return reply("MARK: 80\nCONFIDENCE: 0.9\nFEEDBACK: Clear and well argued."), nil
		}}
	guard := budget.NewGuard(cfg.MaxCost)
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, guard)

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(got))
	}

	a := got[0]
	if a.Status != Succeeded {
		t.Fatalf("Status = %q (err %q), want succeeded", a.Status, a.Err)
	}
	if a.Score != 80 {
		t.Errorf("Score = %v, want 80", a.Score)
	}
	if a.SelfConfidence != 0.9 {
		t.Errorf("SelfConfidence = %v, want 0.9", a.SelfConfidence)
	}
	if a.Cost != 0.01 {
		t.Errorf("Cost = %v, want 0.01", a.Cost)
	}
	if guard.Total() != 0.01 {
		t.Errorf("guard.Total() = %v, want the reconciled actual", guard.Total())
	}
	if guard.CallCounts()[provider.Anthropic] != 1 {
		t.Errorf("CallCounts = %v, want one anthropic call", guard.CallCounts())
	}
}

func TestDispatchPermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
			return nil, provider.NewPermanent(provider.Anthropic, errors.New("invalid api key"))
		}}
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, budget.NewGuard(cfg.MaxCost))

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if got[0].Status != ProviderFailed {
		t.Fatalf("Status = %q, want provider_failed", got[0].Status)
	}
	if fake.callCount() != 1 {
		t.Errorf("adapter called %d times, want 1 (no retry of permanent failures)", fake.callCount())
	}
}

func TestDispatchTransientRetried(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, call int) (*provider.RawResponse, error) {
			if call == 1 {
				return nil, provider.NewTransient(provider.Anthropic, errors.New("overloaded"))
			}
			return reply("MARK: 70\nFEEDBACK: Fine."), nil
		}}
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, budget.NewGuard(cfg.MaxCost))

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if got[0].Status != Succeeded {
		t.Fatalf("Status = %q (err %q), want succeeded after retry", got[0].Status, got[0].Err)
	}
	if fake.callCount() != 2 {
		t.Errorf("adapter called %d times, want 2", fake.callCount())
	}
}

func TestDispatchBudgetSkip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	cfg.MaxCost = 0.000001 // below any estimate
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
			return reply("MARK: 80\nFEEDBACK: Should not run."), nil
		}}
	guard := budget.NewGuard(cfg.MaxCost)
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, guard)

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if got[0].Status != Skipped {
		t.Fatalf("Status = %q, want skipped", got[0].Status)
	}
	if fake.callCount() != 0 {
		t.Errorf("adapter called %d times, want 0 for a skipped run", fake.callCount())
	}
	if len(guard.CallCounts()) != 0 {
		t.Errorf("CallCounts = %v, want empty (skipped runs are never reconciled)", guard.CallCounts())
	}
}

func TestDispatchSessionDeadline(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(ctx context.Context, _ int) (*provider.RawResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, budget.NewGuard(cfg.MaxCost))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got, err := s.Dispatch(ctx, "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if got[0].Status != TimedOut {
		t.Fatalf("Status = %q, want timed_out", got[0].Status)
	}
}

func TestDispatchParseFailureTerminal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
			return reply("I am unable to assess this work product."), nil
		}}
	guard := budget.NewGuard(cfg.MaxCost)
	s := newScheduler(t, cfg, map[string]provider.Adapter{"claude": fake}, guard)

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if got[0].Status != ParseFailed {
		t.Fatalf("Status = %q, want parse_failed", got[0].Status)
	}
	// An unparseable reply was still paid for and must not be retried.
	if fake.callCount() != 1 {
		t.Errorf("adapter called %d times, want 1", fake.callCount())
	}
	if guard.Total() != 0.01 {
		t.Errorf("guard.Total() = %v, want the call's actual cost", guard.Total())
	}
}

func TestDispatchOrderingAndFanout(t *testing.T) {
	t.Parallel()

	first := testGrader("first")
	first.Runs = 2
	second := testGrader("second")
	second.Provider = provider.OpenAI

	cfg := testConfig(first, second)
	mk := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, model: "fake-model",
			fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
				return reply("MARK: 75\nFEEDBACK: Consistent."), nil
			}}
	}
	adapters := map[string]provider.Adapter{
		"first":  mk(provider.Anthropic),
		"second": mk(provider.OpenAI),
	}
	s := newScheduler(t, cfg, adapters, budget.NewGuard(cfg.MaxCost))

	got, err := s.Dispatch(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(got))
	}

	wantOrder := []struct {
		grader string
		run    int
	}{{"first", 0}, {"first", 1}, {"second", 0}}
	for i, want := range wantOrder {
		if got[i].Grader != want.grader || got[i].Run != want.run {
			t.Errorf("results[%d] = %s/%d, want %s/%d", i, got[i].Grader, got[i].Run, want.grader, want.run)
		}
	}
}

func TestNewRejectsMissingAdapter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(testGrader("claude"))
	if _, err := New(cfg, nil, budget.NewGuard(1), ratelimit.NewRegistry(), nil); err == nil {
		t.Error("New() succeeded without an adapter for every grader")
	}
}

func TestDispatchObserverSeesEveryRun(t *testing.T) {
	t.Parallel()

	grader := testGrader("claude")
	grader.Runs = 3
	cfg := testConfig(grader)
	fake := &fakeAdapter{name: provider.Anthropic, model: "fake-model",
		fn: func(_ context.Context, _ int) (*provider.RawResponse, error) {
			return reply("MARK: 66\nFEEDBACK: Steady."), nil
		}}

	var mu sync.Mutex
	seen := 0
	s, err := New(cfg, map[string]provider.Adapter{"claude": fake},
		budget.NewGuard(cfg.MaxCost), ratelimit.NewRegistry(), func(Assessment) {
			mu.Lock()
			seen++
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	if _, err := s.Dispatch(context.Background(), "payload"); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen != 3 {
		t.Errorf("observer saw %d runs, want 3", seen)
	}
}
