// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate composes the final answer and confidence from the
// chosen vote, the verification report, and an optional escalation
// vote. Aggregation is pure arithmetic over its inputs: it makes no
// network calls and its result does not depend on the completion order
// of the votes.
package aggregate

import (
	"fmt"
	"time"

	"github.com/scoresummit/exam-engine/internal/solve"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// maxEvidence bounds the evidence strings carried on the result.
const maxEvidence = 2

// Input carries everything one aggregation needs.
type Input struct {
	Question types.ClassifiedQuestion

	// Chosen is the vote the solver selected.
	Chosen types.Vote

	// Votes lists every vote considered, in completion order. Recorded
	// on the result verbatim; the aggregation itself never depends on
	// the order.
	Votes []types.Vote

	// Verification is the report for the answer being finalized: the
	// escalation answer's when Substituted is set, Chosen's otherwise.
	Verification types.VerificationReport

	// Escalation is the stronger backend's vote, nil when no vote was
	// obtained.
	Escalation *types.Vote

	// EscalationAttempted records that an escalation call was issued,
	// whether or not it yielded a vote.
	EscalationAttempted bool

	// Substituted marks that the escalation answer displaces Chosen's.
	// The caller owns that decision because it owns re-verification.
	Substituted bool

	Elapsed time.Duration
}

// Aggregator applies the confidence-composition rules.
type Aggregator struct {
	cfg types.AggregateConfig
}

// New builds an Aggregator, filling unset constants with their defaults.
func New(cfg types.AggregateConfig) *Aggregator {
	if cfg.VerifiedFloor <= 0 {
		cfg.VerifiedFloor = 0.80
	}
	if cfg.VerifiedWeight <= 0 {
		cfg.VerifiedWeight = 0.15
	}
	if cfg.FailPenalty <= 0 {
		cfg.FailPenalty = 0.7
	}
	if cfg.DisagreePenalty <= 0 {
		cfg.DisagreePenalty = 0.85
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.1
	}
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = 1.0
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate produces the terminal ResolvedAnswer. A passed verification
// rescales confidence into the verified band; a failed one penalizes
// it. A disagreeing escalation vote that did not substitute discounts
// the kept answer. The final confidence is clamped so the system never
// reports zero or absolute certainty.
func (a *Aggregator) Aggregate(in Input) types.ResolvedAnswer {
	final := in.Chosen
	conf := final.Confidence
	explanation := fmt.Sprintf("%s strategy chose %s via backend %s", in.Chosen.Method, in.Chosen.Answer, in.Chosen.BackendID)

	escalated := in.EscalationAttempted || in.Escalation != nil
	switch {
	case in.Escalation == nil:
		if escalated {
			explanation += "; escalation produced no vote"
		}
	case in.Substituted:
		final = *in.Escalation
		conf = final.Confidence
		explanation += fmt.Sprintf("; escalation replaced the answer with %s", final.Answer)
	case solve.Equivalent(in.Escalation.Answer, final.Answer):
		if in.Escalation.Confidence > conf {
			conf = in.Escalation.Confidence
		}
		explanation += "; escalation agreed"
	default:
		conf *= a.cfg.DisagreePenalty
		explanation += fmt.Sprintf("; escalation disagreed (%s), answer kept", in.Escalation.Answer)
	}

	if in.Verification.Passed {
		conf = a.cfg.VerifiedFloor + a.cfg.VerifiedWeight*conf
		explanation += "; verification passed"
	} else if in.Escalation == nil {
		conf *= a.cfg.FailPenalty
		explanation += "; verification failed"
	}

	if conf < a.cfg.MinConfidence {
		conf = a.cfg.MinConfidence
	}
	if conf > a.cfg.MaxConfidence {
		conf = a.cfg.MaxConfidence
	}

	votes := in.Votes
	if in.Escalation != nil {
		votes = append(append([]types.Vote{}, votes...), *in.Escalation)
	}

	evidence := final.Evidence
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}

	return types.ResolvedAnswer{
		QuestionID:   in.Question.ID,
		Answer:       final.Answer,
		Confidence:   conf,
		Section:      in.Question.Section,
		Subdomain:    in.Question.Subdomain,
		Elapsed:      in.Elapsed,
		Votes:        votes,
		Verification: in.Verification,
		Explanation:  explanation,
		Evidence:     evidence,
		Escalated:    escalated,
	}
}
