/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config defines the grading session configuration document.
//
// A configuration is immutable once loaded: one validated Config drives one
// grading session. Validation is fail-fast; a bad document is rejected
// before any dispatch happens, so no partial session state is ever created.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markmate/ensemble/grading/aggregate"
	"github.com/markmate/ensemble/grading/provider"
)

// Duration wraps time.Duration with YAML support for "60s"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// GraderConfig describes one configured grader: a provider/model pairing
// with its trust weight, run count, and dispatch limits.
type GraderConfig struct {
	Name     string  `yaml:"name"`
	Provider string  `yaml:"provider"`
	Model    string  `yaml:"model"`
	Weight   float64 `yaml:"weight"`
	Runs     int     `yaml:"runs"`

	// PrimaryFeedback marks this grader's feedback as the verdict's
	// feedback whenever it has at least one successful run.
	PrimaryFeedback bool `yaml:"primary_feedback"`

	// RateLimit is the provider admission rate in requests per minute.
	RateLimit int `yaml:"rate_limit"`

	// RetryAttempts bounds retries of transient failures per run.
	RetryAttempts int `yaml:"retry_attempts"`

	// Timeout bounds each individual provider call.
	Timeout Duration `yaml:"timeout"`
}

// Config is the complete grading session configuration.
type Config struct {
	Graders []GraderConfig `yaml:"graders"`

	// Method names the cross-grader aggregation method.
	Method string `yaml:"averaging_method"`

	// RunReduction names how multiple runs of one grader collapse.
	RunReduction string `yaml:"run_reduction"`

	// TrimFraction is the per-tail discard fraction for trimmed_mean.
	TrimFraction float64 `yaml:"trim_fraction"`

	// MaxMark is the top of the mark scale for this assignment.
	MaxMark float64 `yaml:"max_mark"`

	// MaxCost is the dollar ceiling for one subject's session.
	MaxCost float64 `yaml:"max_cost_per_subject"`

	// SessionDeadline bounds the whole session; pending runs past it are
	// cancelled and recorded as timed out.
	SessionDeadline Duration `yaml:"session_deadline"`

	// MaxConcurrent bounds the in-flight run pool.
	MaxConcurrent int `yaml:"max_concurrent"`

	// FailurePenalty and VariancePenalty tune the confidence model.
	FailurePenalty  float64 `yaml:"failure_penalty"`
	VariancePenalty float64 `yaml:"variance_penalty"`
}

// Default returns the built-in two-grader configuration: a primary Claude
// grader with double weight and a cheap OpenAI cross-check.
func Default() *Config {
	cfg := &Config{
		Graders: []GraderConfig{
			{
				Name:            "claude-sonnet",
				Provider:        provider.Anthropic,
				Model:           "claude-sonnet-4-5",
				Weight:          2.0,
				Runs:            1,
				PrimaryFeedback: true,
				RateLimit:       50,
			},
			{
				Name:      "gpt4o-mini",
				Provider:  provider.OpenAI,
				Model:     "gpt-4o-mini",
				Weight:    1.0,
				Runs:      1,
				RateLimit: 100,
			},
		},
		Method: string(aggregate.WeightedMean),
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML configuration document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates a YAML configuration document. Unknown fields are
// rejected so typos fail loudly instead of silently using defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Method == "" {
		c.Method = string(aggregate.Mean)
	}
	if c.RunReduction == "" {
		c.RunReduction = string(aggregate.ReduceMean)
	}
	if c.TrimFraction == 0 {
		c.TrimFraction = 0.2
	}
	if c.MaxMark == 0 {
		c.MaxMark = 100
	}
	if c.MaxCost == 0 {
		c.MaxCost = 0.50
	}
	if c.SessionDeadline == 0 {
		c.SessionDeadline = Duration(5 * time.Minute)
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 8
	}
	if c.FailurePenalty == 0 {
		c.FailurePenalty = 0.5
	}
	if c.VariancePenalty == 0 {
		c.VariancePenalty = 1.0
	}
	for i := range c.Graders {
		g := &c.Graders[i]
		if g.Weight == 0 {
			g.Weight = 1.0
		}
		if g.Runs == 0 {
			g.Runs = 1
		}
		if g.RateLimit == 0 {
			g.RateLimit = 60
		}
		if g.RetryAttempts == 0 {
			g.RetryAttempts = 3
		}
		if g.Timeout == 0 {
			g.Timeout = Duration(60 * time.Second)
		}
	}
}

// Validate rejects documents that could not drive a well-formed session.
func (c *Config) Validate() error {
	if len(c.Graders) == 0 {
		return errors.New("at least one grader must be configured")
	}
	if _, err := aggregate.ParseMethod(c.Method); err != nil {
		return err
	}
	if _, err := aggregate.ParseReduction(c.RunReduction); err != nil {
		return err
	}
	if c.TrimFraction < 0 || c.TrimFraction >= 0.5 {
		return fmt.Errorf("trim fraction must be in [0, 0.5), got %v", c.TrimFraction)
	}
	if c.MaxMark <= 0 {
		return fmt.Errorf("max mark must be positive, got %v", c.MaxMark)
	}
	if c.MaxCost <= 0 {
		return fmt.Errorf("max cost per subject must be positive, got %v", c.MaxCost)
	}
	if c.SessionDeadline <= 0 {
		return errors.New("session deadline must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}

	seen := make(map[string]bool, len(c.Graders))
	primaries := 0
	for _, g := range c.Graders {
		if g.Name == "" {
			return errors.New("grader name is required")
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate grader name: %q", g.Name)
		}
		seen[g.Name] = true

		switch g.Provider {
		case provider.Anthropic, provider.OpenAI, provider.Gemini:
		default:
			return fmt.Errorf("grader %q: unsupported provider: %q", g.Name, g.Provider)
		}
		if g.Model == "" {
			return fmt.Errorf("grader %q: model is required", g.Name)
		}
		if g.Weight <= 0 {
			return fmt.Errorf("grader %q: weight must be positive, got %v", g.Name, g.Weight)
		}
		if g.Runs <= 0 {
			return fmt.Errorf("grader %q: runs must be positive, got %d", g.Name, g.Runs)
		}
		if g.RetryAttempts < 0 {
			return fmt.Errorf("grader %q: retry attempts cannot be negative", g.Name)
		}
		if g.Timeout <= 0 {
			return fmt.Errorf("grader %q: timeout must be positive", g.Name)
		}
		if g.PrimaryFeedback {
			primaries++
		}
	}
	if primaries > 1 {
		return errors.New("only one grader can be marked primary_feedback")
	}
	return nil
}

// TotalRuns returns the number of configured runs across all graders.
func (c *Config) TotalRuns() int {
	total := 0
	for _, g := range c.Graders {
		total += g.Runs
	}
	return total
}
