// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the shared data model and configuration structs
// for the exam answer resolution pipeline.
package types

// Section identifies the exam section a question belongs to.
type Section string

const (
	SectionMath           Section = "math"
	SectionReadingWriting Section = "reading_writing"
)

// Question is the immutable input to the pipeline: free-form prompt text,
// an optional ordered list of answer choices, and an optional reference to
// a visual figure. An empty choice list means a numeric fill-in question.
type Question struct {
	ID        string   `json:"id" yaml:"id"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	Choices   []string `json:"choices,omitempty" yaml:"choices,omitempty"`
	FigureRef string   `json:"figure_ref,omitempty" yaml:"figure_ref,omitempty"`
}

// IsFillIn reports whether the question expects a numeric answer rather
// than a choice letter.
func (q Question) IsFillIn() bool {
	return len(q.Choices) == 0
}

// ChoiceLetter returns the letter label ("A", "B", ...) for the choice at
// index i, or "" when i is out of range.
func (q Question) ChoiceLetter(i int) string {
	if i < 0 || i >= len(q.Choices) {
		return ""
	}
	return string(rune('A' + i))
}

// ClassifiedQuestion is a Question plus its classification. Produced once
// by the classifier and consumed read-only by every later stage.
type ClassifiedQuestion struct {
	Question  `yaml:",inline"`
	Section   Section `json:"section" yaml:"section"`
	Subdomain string  `json:"subdomain" yaml:"subdomain"`
	HasFigure bool    `json:"has_figure" yaml:"has_figure"`
}
