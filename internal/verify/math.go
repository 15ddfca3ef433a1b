// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/scoresummit/exam-engine/internal/solve"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// verifyMath re-checks a math answer: recompute the verification code in
// the sandbox, sanity-check the value against the quantity the question
// asks for, and credit an explicit substitution note when the backend
// supplied one.
func (v *Verifier) verifyMath(ctx context.Context, cq types.ClassifiedQuestion, chosen types.Vote, r *report) {
	claimed := solve.AnswerValue(cq.Question, chosen.Answer)

	if v.sandbox != nil && chosen.Code != "" {
		v.runCheck(ctx, r, "recompute", func(ctx context.Context) (bool, string) {
			res, err := v.sandbox.Run(ctx, chosen.Code)
			if err != nil {
				return false, fmt.Sprintf("sandbox unavailable: %v", err)
			}
			if !res.OK {
				return false, "code failed: " + res.Error
			}
			if !solve.Equivalent(claimed, res.Result) {
				return false, fmt.Sprintf("code computed %s, answer is %s", res.Result, claimed)
			}
			return true, "code recomputed " + res.Result
		})
	}

	if ok, note, applicable := rangeCheck(cq, claimed); applicable {
		if ok {
			r.pass("range", note)
		} else {
			r.fail("range", note)
		}
	}

	for _, e := range chosen.Evidence {
		if strings.HasPrefix(e, "substitution: ") {
			r.pass("substitution", strings.TrimPrefix(e, "substitution: "))
			break
		}
	}
}

// rangeCheck validates the answer against the kind of quantity the
// question asks for. It is a heuristic on the prompt text; when nothing
// indicates a bounded quantity the check does not apply.
func rangeCheck(cq types.ClassifiedQuestion, claimed string) (ok bool, note string, applicable bool) {
	f, numeric := solve.ParseNumeric(claimed)
	if !numeric {
		return false, "", false
	}
	prompt := strings.ToLower(cq.Prompt)

	switch {
	case strings.Contains(prompt, "probability"):
		if f < 0 || f > 1 {
			return false, fmt.Sprintf("probability %s outside [0, 1]", claimed), true
		}
		return true, "probability in [0, 1]", true
	case strings.Contains(prompt, "percent") || strings.Contains(prompt, "%"):
		if f < 0 || f > 100 {
			return false, fmt.Sprintf("percentage %s outside [0, 100]", claimed), true
		}
		return true, "percentage in [0, 100]", true
	case asksNonNegative(prompt):
		if f < 0 {
			return false, fmt.Sprintf("negative value %s for a non-negative quantity", claimed), true
		}
		return true, "non-negative as required", true
	}
	return false, "", false
}

// nonNegativeWords mark quantities that cannot be negative.
var nonNegativeWords = []string{
	"length", "width", "height", "distance", "radius", "diameter",
	"perimeter", "area", "volume", "how many", "count", "age", "speed",
}

func asksNonNegative(prompt string) bool {
	for _, w := range nonNegativeWords {
		if strings.Contains(prompt, w) {
			return true
		}
	}
	return false
}
