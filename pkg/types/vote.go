// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Vote is one backend's normalized answer to a question. A failed backend
// call still yields a Vote (low confidence, Fallback set) so downstream
// consumers always see exactly one vote per requested backend.
type Vote struct {
	BackendID  string `json:"backend_id" yaml:"backend_id"`
	Answer     string `json:"answer" yaml:"answer"`
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Method names the strategy that produced the vote ("reading",
	// "math", "escalation", "tiebreak").
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Evidence holds short quoted spans supporting the answer (reading)
	// or a substitution note (math).
	Evidence []string `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	// Code is machine-executable verification code supplied by the
	// backend for math questions.
	Code string `json:"code,omitempty" yaml:"code,omitempty"`

	// ExecResult is the sandbox output for Code, when it was run.
	ExecResult string `json:"exec_result,omitempty" yaml:"exec_result,omitempty"`

	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
	Fallback bool          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// ClampConfidence forces the vote confidence into [0, 1].
func (v *Vote) ClampConfidence() {
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
}

// VerificationReport is the outcome of independently re-checking a chosen
// answer. Score is in [0, 1]; Checks lists the sub-checks performed in
// order and Notes carries one human-readable line per finding.
type VerificationReport struct {
	Passed bool     `json:"passed" yaml:"passed"`
	Score  float64  `json:"score" yaml:"score"`
	Notes  []string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// ResolvedAnswer is the terminal result returned to the caller. It is
// never mutated after the aggregator produces it.
type ResolvedAnswer struct {
	QuestionID string  `json:"question_id" yaml:"question_id"`
	Answer     string  `json:"answer" yaml:"answer"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Section    Section `json:"section" yaml:"section"`
	Subdomain  string  `json:"subdomain" yaml:"subdomain"`

	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`

	// Votes lists every vote considered, in completion order, including
	// any tie-break and escalation votes.
	Votes []Vote `json:"votes" yaml:"votes"`

	Verification VerificationReport `json:"verification" yaml:"verification"`

	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Evidence    []string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Escalated   bool     `json:"escalated" yaml:"escalated"`
}
