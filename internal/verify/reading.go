// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package verify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// grammarSubdomains answer from rules rather than quoted passages, so
// the evidence-presence check does not apply to them.
var grammarSubdomains = map[string]bool{
	"grammar":     true,
	"punctuation": true,
	"transitions": true,
}

// verifyReading re-checks a reading/writing answer: the quoted evidence
// must actually appear in the question text, and the configured
// independent backends must re-score the chosen answer as the best
// choice without strongly disagreeing with each other.
func (v *Verifier) verifyReading(ctx context.Context, cq types.ClassifiedQuestion, chosen types.Vote, r *report) {
	if !grammarSubdomains[cq.Subdomain] {
		v.checkEvidence(cq, chosen, r)
	}
	if len(v.cfg.RescoreBackends) > 0 {
		v.runCheck(ctx, r, "rescore", func(ctx context.Context) (bool, string) {
			return v.rescore(ctx, cq, chosen)
		})
	}
}

// checkEvidence verifies at least one quoted span appears verbatim in
// the prompt, modulo case and surrounding whitespace.
func (v *Verifier) checkEvidence(cq types.ClassifiedQuestion, chosen types.Vote, r *report) {
	if len(chosen.Evidence) == 0 {
		r.fail("evidence", "no supporting quotes supplied")
		return
	}
	prompt := strings.ToLower(cq.Prompt)
	for _, quote := range chosen.Evidence {
		q := strings.ToLower(strings.TrimSpace(quote))
		if q != "" && strings.Contains(prompt, q) {
			r.pass("evidence", "quote found in question text")
			return
		}
	}
	r.fail("evidence", "no supplied quote appears in the question text")
}

// rescorePromptTmpl asks a backend to score every choice independently,
// without being told which one was picked.
var rescorePromptTmpl = template.Must(template.New("rescore").Parse(`You are grading a multiple-choice reading/writing question. Score how likely each choice is to be the correct answer.

Question:
{{.Prompt}}

Choices:
{{.Choices}}

Respond with only a JSON object mapping each choice letter to a score between 0.0 and 1.0:
{"scores": {"A": <score>, "B": <score>}}

Do not include any text outside the JSON object.`))

type rescorePayload struct {
	Scores map[string]float64 `json:"scores"`
}

// rescore fans the scoring prompt out to the configured backends and
// checks that every one of them ranks the chosen answer first with a
// score of at least MinRescore, and that no two backends disagree on
// the chosen answer's score by DisagreementGap or more.
func (v *Verifier) rescore(ctx context.Context, cq types.ClassifiedQuestion, chosen types.Vote) (bool, string) {
	prompt, err := renderRescorePrompt(cq)
	if err != nil {
		return false, err.Error()
	}

	var (
		mu          sync.Mutex
		chosenScore = make(map[string]float64)
		topLetter   = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range v.cfg.RescoreBackends {
		a, ok := v.pool.Get(id)
		if !ok {
			return false, fmt.Sprintf("unknown rescore backend %q", id)
		}
		id := id
		g.Go(func() error {
			resp, err := a.Call(gctx, []backend.Message{{Role: "user", Content: prompt}}, backend.CallOptions{})
			if err != nil {
				return fmt.Errorf("backend %s: %w", id, err)
			}
			var p rescorePayload
			if err := backend.DecodeJSON([]byte(resp.Text), &p); err != nil {
				return fmt.Errorf("backend %s: %w", id, err)
			}
			mu.Lock()
			chosenScore[id] = p.Scores[chosen.Answer]
			topLetter[id] = topScored(p.Scores)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err.Error()
	}

	scores := make([]float64, 0, len(chosenScore))
	for _, id := range v.cfg.RescoreBackends {
		score := chosenScore[id]
		scores = append(scores, score)
		if topLetter[id] != chosen.Answer {
			return false, fmt.Sprintf("backend %s prefers %s over %s", id, topLetter[id], chosen.Answer)
		}
		if score < v.cfg.MinRescore {
			return false, fmt.Sprintf("backend %s scored %s at %.2f, below %.2f", id, chosen.Answer, score, v.cfg.MinRescore)
		}
	}
	if len(scores) == 2 && math.Abs(scores[0]-scores[1]) >= v.cfg.DisagreementGap {
		return false, fmt.Sprintf("rescore backends disagree: %.2f vs %.2f", scores[0], scores[1])
	}
	return true, fmt.Sprintf("%d backend(s) confirm %s", len(scores), chosen.Answer)
}

// topScored returns the letter with the highest score, ties broken
// alphabetically for determinism.
func topScored(scores map[string]float64) string {
	letters := make([]string, 0, len(scores))
	for l := range scores {
		letters = append(letters, l)
	}
	sort.Strings(letters)

	top, best := "", math.Inf(-1)
	for _, l := range letters {
		if scores[l] > best {
			top, best = l, scores[l]
		}
	}
	return top
}

func renderRescorePrompt(cq types.ClassifiedQuestion) (string, error) {
	var choices strings.Builder
	for i, c := range cq.Choices {
		fmt.Fprintf(&choices, "%s) %s\n", cq.ChoiceLetter(i), c)
	}
	var buf strings.Builder
	err := rescorePromptTmpl.Execute(&buf, struct {
		Prompt  string
		Choices string
	}{cq.Prompt, strings.TrimRight(choices.String(), "\n")})
	if err != nil {
		return "", fmt.Errorf("rendering rescore prompt: %w", err)
	}
	return buf.String(), nil
}
