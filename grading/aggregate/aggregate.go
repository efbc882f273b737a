/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package aggregate combines per-run grader scores into one verdict.
//
// Aggregation is pure and deterministic: the same inputs always produce
// bit-identical mark, feedback, and confidence. Runs are first reduced to
// one effective score per grader, then combined across graders with the
// configured method. Graders with zero successful runs are absent from every
// method, including the weighted mean's denominator.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoValidAssessments indicates no successful runs were available; the
// session must report a terminal failure rather than fabricate a score.
var ErrNoValidAssessments = errors.New("no valid assessments to aggregate")

// Method selects the cross-grader combination strategy.
type Method string

const (
	Mean         Method = "mean"
	Median       Method = "median"
	WeightedMean Method = "weighted_mean"
	TrimmedMean  Method = "trimmed_mean"
)

// ParseMethod validates an aggregation method name from configuration.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Mean, Median, WeightedMean, TrimmedMean:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown aggregation method: %q", s)
	}
}

// Reduction selects how multiple runs of one grader collapse to one score.
type Reduction string

const (
	// ReduceMean averages all of a grader's successful runs.
	ReduceMean Reduction = "mean"
	// ReduceTrimmed discards the highest and lowest run before averaging,
	// when at least three runs succeeded.
	ReduceTrimmed Reduction = "trimmed"
)

// ParseReduction validates a per-run reduction name from configuration.
func ParseReduction(s string) (Reduction, error) {
	switch Reduction(s) {
	case ReduceMean, ReduceTrimmed:
		return Reduction(s), nil
	default:
		return "", fmt.Errorf("unknown run reduction: %q", s)
	}
}

// GraderScores carries one grader's successful runs into aggregation.
type GraderScores struct {
	Name    string
	Weight  float64
	Primary bool

	// Runs holds the scores of this grader's successful runs, in run order.
	Runs []float64

	// Feedback is the grader's representative feedback text.
	Feedback string
}

// Options tunes aggregation. The penalty weights are deliberately exposed
// rather than hard-coded; only the monotonicity of the confidence model is
// contractual, not its exact values.
type Options struct {
	Method    Method
	Reduction Reduction

	// TrimFraction is the fraction of graders discarded from each tail by
	// the trimmed_mean method, rounded to the nearest whole grader. No
	// graders are discarded when fewer than four remain.
	TrimFraction float64

	// MaxMark is the top of the mark scale, used to normalize disagreement.
	MaxMark float64

	// FailurePenalty scales the confidence deduction for the fraction of
	// configured runs that did not succeed.
	FailurePenalty float64

	// VariancePenalty scales the confidence deduction for disagreement
	// between graders' effective scores.
	VariancePenalty float64
}

// DefaultOptions returns aggregation options with the standard penalties.
func DefaultOptions(method Method, maxMark float64) Options {
	return Options{
		Method:          method,
		Reduction:       ReduceMean,
		TrimFraction:    0.2,
		MaxMark:         maxMark,
		FailurePenalty:  0.5,
		VariancePenalty: 1.0,
	}
}

// Outcome is the combined verdict across graders.
type Outcome struct {
	Mark       float64
	Feedback   string
	Confidence float64
	Method     Method
}

// Combine reduces and combines grader scores into one Outcome.
// totalRuns is the number of configured runs for the session and failedRuns
// the number that did not succeed (including skipped runs); together they
// drive the confidence model. Graders with no successful runs must be
// omitted from groups by the caller.
func Combine(groups []GraderScores, totalRuns, failedRuns int, opts Options) (*Outcome, error) {
	if opts.MaxMark <= 0 {
		return nil, fmt.Errorf("max mark must be positive, got %v", opts.MaxMark)
	}

	effective := make([]float64, 0, len(groups))
	for _, g := range groups {
		if len(g.Runs) == 0 {
			return nil, fmt.Errorf("grader %q has no successful runs", g.Name)
		}
		effective = append(effective, reduceRuns(g.Runs, opts.Reduction))
	}
	if len(effective) == 0 {
		return nil, ErrNoValidAssessments
	}

	var mark float64
	switch opts.Method {
	case Mean:
		mark = mean(effective)
	case Median:
		mark = median(effective)
	case WeightedMean:
		var sum, weightSum float64
		for i, g := range groups {
			sum += effective[i] * g.Weight
			weightSum += g.Weight
		}
		if weightSum == 0 {
			return nil, errors.New("weighted mean requires positive weights")
		}
		mark = sum / weightSum
	case TrimmedMean:
		mark = trimmedMean(effective, opts.TrimFraction)
	default:
		return nil, fmt.Errorf("unknown aggregation method: %q", opts.Method)
	}

	return &Outcome{
		Mark:       mark,
		Feedback:   selectFeedback(groups, effective, mark),
		Confidence: confidence(effective, totalRuns, failedRuns, opts),
		Method:     opts.Method,
	}, nil
}

// reduceRuns collapses one grader's runs to an effective score.
func reduceRuns(runs []float64, reduction Reduction) float64 {
	if reduction == ReduceTrimmed && len(runs) >= 3 {
		sorted := append([]float64(nil), runs...)
		sort.Float64s(sorted)
		return mean(sorted[1 : len(sorted)-1])
	}
	return mean(runs)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// trimmedMean discards round(fraction×n) graders from each tail, keeping at
// least one score. Fewer than four graders means nothing is discarded.
func trimmedMean(xs []float64, fraction float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	n := len(sorted)
	k := 0
	if n >= 4 {
		k = int(math.Round(fraction * float64(n)))
	}
	if 2*k >= n {
		k = (n - 1) / 2
	}
	return mean(sorted[k : n-k])
}

// selectFeedback picks the verdict's feedback text: the primary-feedback
// grader's verbatim when it has successful runs, otherwise the grader whose
// effective score lands closest to the aggregate (ties broken by highest
// weight, then name for determinism).
func selectFeedback(groups []GraderScores, effective []float64, mark float64) string {
	for _, g := range groups {
		if g.Primary {
			return g.Feedback
		}
	}

	bestIdx := -1
	for i, g := range groups {
		if bestIdx < 0 {
			bestIdx = i
			continue
		}
		di := math.Abs(effective[i] - mark)
		db := math.Abs(effective[bestIdx] - mark)
		switch {
		case di < db:
			bestIdx = i
		case di == db && g.Weight > groups[bestIdx].Weight:
			bestIdx = i
		case di == db && g.Weight == groups[bestIdx].Weight && g.Name < groups[bestIdx].Name:
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return ""
	}
	return groups[bestIdx].Feedback
}

// confidence starts at 1.0 and deducts penalties for failed runs and for
// disagreement between graders, clamped to [0,1]. All else equal, a higher
// failure fraction can only lower the result.
func confidence(effective []float64, totalRuns, failedRuns int, opts Options) float64 {
	c := 1.0

	if totalRuns > 0 && failedRuns > 0 {
		c -= opts.FailurePenalty * float64(failedRuns) / float64(totalRuns)
	}

	if len(effective) > 1 {
		m := mean(effective)
		var variance float64
		for _, x := range effective {
			variance += (x - m) * (x - m)
		}
		variance /= float64(len(effective))
		c -= opts.VariancePenalty * math.Sqrt(variance) / opts.MaxMark
	}

	return math.Min(1.0, math.Max(0.0, c))
}
