/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package parse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStructuredFenced(t *testing.T) {
	t.Parallel()

	text := "Here is my assessment:\n```json\n{\"mark\": 85.5, \"feedback\": \"Solid work overall.\", \"confidence\": 0.9}\n```\nLet me know if you need more detail."

	got, err := Parse(text, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	want := &Result{Mark: 85.5, Feedback: "Solid work overall.", Confidence: 0.9}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStructuredBareObject(t *testing.T) {
	t.Parallel()

	got, err := Parse(`{"mark": 42, "feedback": "Needs more depth."}`, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Mark != 42 {
		t.Errorf("Mark = %v, want 42", got.Mark)
	}
	if got.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want default %v when omitted", got.Confidence, DefaultConfidence)
	}
}

func TestParseStructuredOutOfRange(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"mark": 110, "feedback": "Great."}`, 100)
	if !errors.Is(err, ErrMarkOutOfRange) {
		t.Fatalf("Parse() = %v, want ErrMarkOutOfRange", err)
	}
}

func TestParseLabeled(t *testing.T) {
	t.Parallel()

	text := "MARK: 72.5\nCONFIDENCE: 0.8\nFEEDBACK: The argument is clear but the evidence section is thin.\n\nAdditional notes follow."

	got, err := Parse(text, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	want := &Result{
		Mark:       72.5,
		Feedback:   "The argument is clear but the evidence section is thin.",
		Confidence: 0.8,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLabeledCaseInsensitive(t *testing.T) {
	t.Parallel()

	got, err := Parse("mark: 60\nfeedback: Acceptable.", 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Mark != 60 {
		t.Errorf("Mark = %v, want 60", got.Mark)
	}
}

func TestParseLabeledOutOfRangeRejected(t *testing.T) {
	t.Parallel()

	// A labeled mark on the wrong scale must fail, not clamp; the heuristic
	// must not get a chance to salvage it either.
	_, err := Parse("MARK: 150\nFEEDBACK: Excellent.", 100)
	if !errors.Is(err, ErrMarkOutOfRange) {
		t.Fatalf("Parse() = %v, want ErrMarkOutOfRange", err)
	}
}

func TestParseHeuristic(t *testing.T) {
	t.Parallel()

	text := "I would give this piece 78 out of 100.\n\nThe structure is strong and the citations are well chosen, though the conclusion repeats the introduction almost verbatim and could be cut in half."

	got, err := Parse(text, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Mark != 78 {
		t.Errorf("Mark = %v, want 78", got.Mark)
	}
	if got.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want default", got.Confidence)
	}
	if got.Feedback == "" {
		t.Error("Feedback empty, want longest prose block")
	}
}

func TestParseHeuristicSkipsOutOfRangeNumbers(t *testing.T) {
	t.Parallel()

	// 2024 is out of range on a 100 scale; the first in-range number wins.
	got, err := Parse("Written in 2024, this essay earns 65 points.", 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Mark != 65 {
		t.Errorf("Mark = %v, want 65", got.Mark)
	}
}

func TestParseNoMark(t *testing.T) {
	t.Parallel()

	_, err := Parse("This essay shows promise but I cannot assign a score.", 100)
	if !errors.Is(err, ErrNoMark) {
		t.Fatalf("Parse() = %v, want ErrNoMark", err)
	}
}

func TestParseInvalidMaxMark(t *testing.T) {
	t.Parallel()

	if _, err := Parse("MARK: 5", 0); err == nil {
		t.Error("Parse() with zero max mark succeeded, want error")
	}
}

func TestParseConfidenceOutOfRangeUsesDefault(t *testing.T) {
	t.Parallel()

	got, err := Parse(`{"mark": 50, "feedback": "Fine.", "confidence": 7}`, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want default for out-of-range self-report", got.Confidence)
	}
}

func TestParseMalformedJSONFallsThrough(t *testing.T) {
	t.Parallel()

	// Broken JSON is not an error; the labeled pass still runs.
	text := "```json\n{\"mark\": 80,\n```\nMARK: 80\nFEEDBACK: Good effort."
	got, err := Parse(text, 100)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got.Mark != 80 {
		t.Errorf("Mark = %v, want 80 from the labeled pass", got.Mark)
	}
}
