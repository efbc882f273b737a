/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import "fmt"

// settings holds the tunables shared by all adapter variants.
type settings struct {
	temperature float64
	maxTokens   int64
}

func defaultSettings() settings {
	return settings{
		temperature: 0.1, // low temperature for grading consistency
		maxTokens:   4096,
	}
}

// Option is a functional option for configuring an adapter.
type Option func(*settings) error

// WithTemperature sets the sampling temperature for grading calls.
// Lower values produce more deterministic marking.
func WithTemperature(temp float64) Option {
	return func(s *settings) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		s.temperature = temp
		return nil
	}
}

// WithMaxTokens sets the maximum completion tokens for grading calls.
func WithMaxTokens(tokens int64) Option {
	return func(s *settings) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		s.maxTokens = tokens
		return nil
	}
}

func applyOptions(opts []Option) (settings, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return s, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}
