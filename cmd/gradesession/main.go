/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main grades one subject from the command line.
//
// It loads a grading configuration, fans the subject out to the configured
// graders, and writes the aggregated verdict as JSON on stdout. Provider
// credentials come from the standard environment variables of each SDK
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"

	"github.com/markmate/ensemble/grading/aggregate"
	"github.com/markmate/ensemble/grading/config"
	"github.com/markmate/ensemble/grading/observe"
	"github.com/markmate/ensemble/grading/session"
)

type envCfg struct {
	// ConfigPath points at the YAML grading configuration. Empty means the
	// built-in two-grader default.
	ConfigPath string `env:"GRADING_CONFIG"`

	RubricPath  string `env:"RUBRIC_PATH,required"`
	ContentPath string `env:"CONTENT_PATH,required"`
	SubjectID   string `env:"SUBJECT_ID,default=subject"`

	// MetricsPort serves Prometheus metrics when positive. The CLI exits
	// after one session, so this mostly matters for batch wrappers.
	MetricsPort int `env:"METRICS_PORT,default=0"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var env envCfg
	if err := envconfig.Process(ctx, &env); err != nil {
		clog.FatalContextf(ctx, "processing environment: %v", err)
	}

	cfg := config.Default()
	if env.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(env.ConfigPath); err != nil {
			clog.FatalContextf(ctx, "loading config: %v", err)
		}
	}

	rubric, err := os.ReadFile(env.RubricPath)
	if err != nil {
		clog.FatalContextf(ctx, "reading rubric: %v", err)
	}
	content, err := os.ReadFile(env.ContentPath)
	if err != nil {
		clog.FatalContextf(ctx, "reading content: %v", err)
	}

	opts := []session.Option{}
	if env.MetricsPort > 0 {
		reg := prometheus.NewRegistry()
		opts = append(opts, session.WithListener(observe.NewPrometheusListener(reg)))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			addr := fmt.Sprintf(":%d", env.MetricsPort)
			if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				clog.ErrorContextf(ctx, "metrics server: %v", err)
			}
		}()
	}

	orch, err := session.New(ctx, cfg, opts...)
	if err != nil {
		clog.FatalContextf(ctx, "building orchestrator: %v", err)
	}

	clog.InfoContextf(ctx, "Grading subject %q with %d graders (%s)",
		env.SubjectID, len(cfg.Graders), cfg.Method)

	result, err := orch.Grade(ctx, session.Subject{
		ID:      env.SubjectID,
		Rubric:  string(rubric),
		Content: string(content),
	})
	if err != nil {
		if errors.Is(err, aggregate.ErrNoValidAssessments) {
			clog.FatalContextf(ctx, "no grader produced a usable assessment: %v", err)
		}
		clog.FatalContextf(ctx, "grading failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		clog.FatalContextf(ctx, "encoding result: %v", err)
	}
}
