/*
Copyright 2026 MarkMate, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prompt renders the grading payload sent to every provider.
//
// All graders in a session receive the identical payload so their scores are
// comparable. Templates use {{placeholder}} markers; rendering fails if any
// marker is left unbound, since a payload with a literal "{{rubric}}" in it
// would silently grade the wrong thing.
package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a text template with {{placeholder}} substitution.
type Template struct {
	text string
}

// New creates a Template from raw text.
func New(text string) *Template {
	return &Template{text: text}
}

// Render substitutes every placeholder from values. It returns an error if
// the template references a placeholder that values does not bind.
func (t *Template) Render(values map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(t.text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unbound placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// gradingTemplate is the default grading instruction. The labeled output
// contract matches what the parse package extracts.
var gradingTemplate = New(strings.TrimSpace(`
You are an experienced grader assessing a student work product against a rubric.

RUBRIC:
{{rubric}}

WORK PRODUCT:
{{content}}

Assess the work product strictly against the rubric. Marks range from 0 to {{max_mark}}.

Respond in exactly this format:

MARK: <numeric mark between 0 and {{max_mark}}>
CONFIDENCE: <your confidence in this mark, between 0.0 and 1.0>
FEEDBACK: <concise, actionable feedback for the student>
`))

// RenderGrading renders the default grading payload for one subject.
func RenderGrading(rubric, content string, maxMark float64) (string, error) {
	return gradingTemplate.Render(map[string]string{
		"rubric":   rubric,
		"content":  content,
		"max_mark": strconv.FormatFloat(maxMark, 'f', -1, 64),
	})
}
