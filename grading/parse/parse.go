/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package parse extracts structured scores from free-form grader replies.
//
// Extraction is an ordered chain of strategies: a strict pass over an
// embedded JSON block, a labeled pass over MARK/FEEDBACK/CONFIDENCE lines,
// and a heuristic pass over the raw prose. Each strategy either produces a
// complete result or reports no match; there are no partially-populated
// results. A mark outside the declared range is rejected outright rather
// than clamped, since clamping would hide a provider grading on the wrong
// scale.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultConfidence is assumed when a grader does not report its own
// confidence. Self-reported confidence is auxiliary, not authoritative, so
// the default is deliberately middling.
const DefaultConfidence = 0.5

var (
	// ErrNoMark indicates no strategy found a usable numeric mark.
	ErrNoMark = errors.New("no parseable mark in response")

	// ErrMarkOutOfRange indicates a mark was found but falls outside
	// [0, maxMark].
	ErrMarkOutOfRange = errors.New("mark outside declared range")
)

// Result is the structured outcome of parsing one grader reply.
type Result struct {
	Mark     float64
	Feedback string

	// Confidence is the grader's self-reported confidence in [0,1], or
	// DefaultConfidence when absent or out of range.
	Confidence float64
}

// strategy attempts one extraction approach. It returns the result and true
// on a match, or nil and false when the approach does not apply. A non-nil
// error means the strategy matched but the content is invalid (e.g. an
// out-of-range mark), which stops the chain.
type strategy func(text string, maxMark float64) (*Result, bool, error)

// Parse extracts a Result from raw reply text. maxMark must be positive.
func Parse(text string, maxMark float64) (*Result, error) {
	if maxMark <= 0 {
		return nil, fmt.Errorf("max mark must be positive, got %v", maxMark)
	}

	for _, s := range []strategy{parseStructured, parseLabeled, parseHeuristic} {
		res, ok, err := s(text, maxMark)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
	}
	return nil, ErrNoMark
}

// structuredReply is the JSON contract graders are asked to follow.
type structuredReply struct {
	Mark       *float64 `json:"mark"`
	Feedback   string   `json:"feedback"`
	Confidence *float64 `json:"confidence"`
}

// parseStructured attempts strict extraction of an embedded JSON block with
// the required mark and feedback keys.
func parseStructured(text string, maxMark float64) (*Result, bool, error) {
	body := extractJSONBlock(text)
	if body == "" {
		return nil, false, nil
	}

	var reply structuredReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, false, nil
	}
	if reply.Mark == nil || strings.TrimSpace(reply.Feedback) == "" {
		return nil, false, nil
	}
	if *reply.Mark < 0 || *reply.Mark > maxMark {
		return nil, false, fmt.Errorf("%w: %v not in [0, %v]", ErrMarkOutOfRange, *reply.Mark, maxMark)
	}

	return &Result{
		Mark:       *reply.Mark,
		Feedback:   strings.TrimSpace(reply.Feedback),
		Confidence: normalizeConfidence(reply.Confidence),
	}, true, nil
}

var (
	markPattern       = regexp.MustCompile(`(?i)\bMARK[:\s]+(\d+(?:\.\d+)?)`)
	confidencePattern = regexp.MustCompile(`(?i)\bCONFIDENCE[:\s]+(\d+(?:\.\d+)?)`)
	feedbackPattern   = regexp.MustCompile(`(?is)\bFEEDBACK[:\s]+(.*?)(?:\n\s*\n|\z)`)
	numberPattern     = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// parseLabeled extracts MARK/FEEDBACK/CONFIDENCE labeled lines, the output
// contract used by the grading prompt.
func parseLabeled(text string, maxMark float64) (*Result, bool, error) {
	markMatch := markPattern.FindStringSubmatch(text)
	if markMatch == nil {
		return nil, false, nil
	}
	mark, err := strconv.ParseFloat(markMatch[1], 64)
	if err != nil {
		return nil, false, nil
	}
	if mark < 0 || mark > maxMark {
		return nil, false, fmt.Errorf("%w: %v not in [0, %v]", ErrMarkOutOfRange, mark, maxMark)
	}

	feedback := ""
	if fm := feedbackPattern.FindStringSubmatch(text); fm != nil {
		feedback = strings.TrimSpace(fm[1])
	}
	if feedback == "" {
		feedback = strings.TrimSpace(text)
	}

	var confidence *float64
	if cm := confidencePattern.FindStringSubmatch(text); cm != nil {
		if c, err := strconv.ParseFloat(cm[1], 64); err == nil {
			confidence = &c
		}
	}

	return &Result{
		Mark:       mark,
		Feedback:   feedback,
		Confidence: normalizeConfidence(confidence),
	}, true, nil
}

// parseHeuristic is the last-resort pass: the first standalone number within
// the declared mark range becomes the mark, and the longest contiguous prose
// block becomes the feedback. Numbers outside the range are skipped, so this
// strategy cannot produce an out-of-range mark.
func parseHeuristic(text string, maxMark float64) (*Result, bool, error) {
	var mark float64
	found := false
	for _, candidate := range numberPattern.FindAllString(text, -1) {
		n, err := strconv.ParseFloat(candidate, 64)
		if err != nil {
			continue
		}
		if n >= 0 && n <= maxMark {
			mark = n
			found = true
			break
		}
	}
	if !found {
		return nil, false, nil
	}

	feedback := longestProseBlock(text)
	if feedback == "" {
		feedback = strings.TrimSpace(text)
	}

	return &Result{
		Mark:       mark,
		Feedback:   feedback,
		Confidence: DefaultConfidence,
	}, true, nil
}

// extractJSONBlock finds JSON content in a reply that may wrap it in
// markdown code fences, or contain a bare object.
func extractJSONBlock(text string) string {
	// Search for a ```json fence on its own line and collect until closing ```.
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock && trimmed == "```json" {
			inBlock = true
			continue
		}
		if inBlock {
			if trimmed == "```" {
				return strings.TrimSpace(sb.String())
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	// No fence: accept a reply that is itself a JSON object, possibly with
	// stray fences or whitespace around it.
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return cleaned
	}
	return ""
}

// longestProseBlock returns the longest run of non-blank lines in text.
func longestProseBlock(text string) string {
	best := ""
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if len(block) > len(best) {
			best = block
		}
	}
	return best
}

func normalizeConfidence(c *float64) float64 {
	if c == nil || *c < 0 || *c > 1 {
		return DefaultConfidence
	}
	return *c
}
