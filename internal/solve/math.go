// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solve

import (
	"context"
	"fmt"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/dispatch"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// solveMath races the configured backends, cross-checks every genuine
// vote's verification code in the sandbox, and picks the majority
// answer. A configured tie-break backend is consulted once when no
// strict plurality emerges.
func (s *Solver) solveMath(ctx context.Context, cq types.ClassifiedQuestion, adapters []backend.Adapter) (types.Vote, []types.Vote, error) {
	prompt, err := renderPrompt(mathPromptTmpl, cq)
	if err != nil {
		return types.Vote{}, nil, err
	}

	votes, err := dispatch.Run(ctx, adapters, s.callFunc(cq, prompt, "math"), s.dispatchOptions(cq))
	if err != nil {
		return types.Vote{}, nil, err
	}

	for i := range votes {
		if !votes[i].Fallback {
			s.crossCheck(ctx, &votes[i], cq)
		}
	}

	chosen, plurality := majorityVote(votes)
	if !plurality && s.cfg.TiebreakBackend != "" {
		fmt.Fprintf(s.w, "no majority for %s, consulting %s\n", cq.ID, s.cfg.TiebreakBackend)
		tiebreak, err := s.callOne(ctx, s.cfg.TiebreakBackend, cq, "tiebreak", s.dispatch.PerCallTimeout)
		if err != nil {
			fmt.Fprintf(s.w, "warning: tiebreak backend %s failed: %v\n", s.cfg.TiebreakBackend, err)
		} else {
			s.crossCheck(ctx, &tiebreak, cq)
			votes = append(votes, tiebreak)
			chosen, _ = majorityVote(votes)
		}
	}
	return chosen, votes, nil
}

// crossCheck executes the vote's verification code and reconciles the
// computed value with the claimed answer. A match raises confidence, a
// mismatch always lowers it, and a low-confidence vote additionally has
// its answer replaced by the computed value. Sandbox unavailability and
// execution failures leave the vote untouched.
func (s *Solver) crossCheck(ctx context.Context, v *types.Vote, cq types.ClassifiedQuestion) {
	if s.sandbox == nil || v.Code == "" {
		return
	}

	res, err := s.sandbox.Run(ctx, v.Code)
	if err != nil {
		fmt.Fprintf(s.w, "warning: sandbox run for %s failed: %v\n", v.BackendID, err)
		return
	}
	if !res.OK || res.Result == "" {
		if res.Error != "" {
			v.Evidence = append(v.Evidence, "verification failed: "+res.Error)
		}
		return
	}
	v.ExecResult = res.Result

	claimed := AnswerValue(cq.Question, v.Answer)
	if Equivalent(claimed, res.Result) {
		v.Confidence = min(v.Confidence+s.cfg.MatchBoost, s.cfg.MatchCap)
		v.Evidence = append(v.Evidence, "verified: code recomputed "+res.Result)
		return
	}

	override := v.Confidence < s.cfg.OverrideThreshold
	v.Confidence *= s.cfg.MismatchPenalty
	v.Evidence = append(v.Evidence, fmt.Sprintf("mismatch: claimed %s, code computed %s", claimed, res.Result))
	if override {
		v.Answer = canonicalAnswer(cq.Question, res.Result)
		v.Method = v.Method + "+override"
	}
	v.ClampConfidence()
}
