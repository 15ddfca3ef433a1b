// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package solve turns a classified question into a chosen vote. Two
// strategies share the dispatcher: reading/writing relies on majority
// voting over evidence-bearing answers, math additionally cross-checks
// each vote's verification code in the sandbox and can call a tertiary
// backend to break ties.
package solve

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/dispatch"
	"github.com/scoresummit/exam-engine/internal/sandbox"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// Solver drives the dispatcher with domain-specific strategies.
type Solver struct {
	pool     backend.Pool
	sandbox  sandbox.Runner
	cfg      types.SolverConfig
	dispatch types.DispatchConfig
	w        io.Writer
}

// New builds a Solver. runner may be nil when no sandbox is available;
// math votes then skip the cross-check. w receives progress lines and
// may be nil.
func New(pool backend.Pool, runner sandbox.Runner, cfg types.SolverConfig, dispatchCfg types.DispatchConfig, w io.Writer) *Solver {
	if w == nil {
		w = io.Discard
	}
	applySolverDefaults(&cfg)
	return &Solver{pool: pool, sandbox: runner, cfg: cfg, dispatch: dispatchCfg, w: w}
}

func applySolverDefaults(cfg *types.SolverConfig) {
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 0.72
	}
	if cfg.EscalationTimeout <= 0 {
		cfg.EscalationTimeout = 45 * time.Second
	}
	if cfg.MatchBoost <= 0 {
		cfg.MatchBoost = 0.15
	}
	if cfg.MatchCap <= 0 {
		cfg.MatchCap = 0.98
	}
	if cfg.MismatchPenalty <= 0 {
		cfg.MismatchPenalty = 0.75
	}
	if cfg.OverrideThreshold <= 0 {
		cfg.OverrideThreshold = 0.5
	}
}

// Config exposes the solver settings after defaults were applied; the
// pipeline reads the escalation threshold from here.
func (s *Solver) Config() types.SolverConfig { return s.cfg }

// Solve dispatches the question to the configured backends and reduces
// their votes to a single chosen vote. The returned slice holds every
// vote considered, in completion order. The only error is a dispatch
// that produced no votes at all.
func (s *Solver) Solve(ctx context.Context, cq types.ClassifiedQuestion) (types.Vote, []types.Vote, error) {
	adapters, err := s.pool.Pick(s.cfg.Backends)
	if err != nil {
		return types.Vote{}, nil, err
	}

	if cq.Section == types.SectionMath {
		return s.solveMath(ctx, cq, adapters)
	}
	return s.solveReading(ctx, cq, adapters)
}

// Escalate issues the single stronger-backend attempt. The caller
// enforces that at most one escalation happens per question.
func (s *Solver) Escalate(ctx context.Context, cq types.ClassifiedQuestion) (types.Vote, error) {
	if s.cfg.EscalationBackend == "" {
		return types.Vote{}, fmt.Errorf("no escalation backend configured")
	}
	fmt.Fprintf(s.w, "escalating %s to %s\n", cq.ID, s.cfg.EscalationBackend)

	vote, err := s.callOne(ctx, s.cfg.EscalationBackend, cq, "escalation", s.cfg.EscalationTimeout)
	if err != nil {
		return types.Vote{}, err
	}
	if cq.Section == types.SectionMath {
		s.crossCheck(ctx, &vote, cq)
	}
	return vote, nil
}

// dispatchOptions assembles the race options shared by both strategies.
func (s *Solver) dispatchOptions(cq types.ClassifiedQuestion) dispatch.Options {
	opts := dispatch.Options{
		PerCallTimeout: s.dispatch.PerCallTimeout,
		TotalTimeout:   s.dispatch.TotalTimeout,
		Fallback: func(id string, err error) types.Vote {
			fmt.Fprintf(s.w, "warning: backend %s failed: %v\n", id, err)
			return types.Vote{Answer: DefaultAnswer(cq.Question), Confidence: 0.1}
		},
	}
	if s.dispatch.EarlyConsensus && len(s.dispatch.FastBackends) > 0 {
		opts.Consensus = &dispatch.ConsensusPolicy{
			Quorum: s.dispatch.FastBackends,
			Agree:  Equivalent,
		}
	}
	return opts
}

// callFunc adapts one backend call into a normalized vote for the
// dispatcher. Unparseable output is returned as an error so the
// dispatcher absorbs it into a fallback vote.
func (s *Solver) callFunc(cq types.ClassifiedQuestion, prompt, method string) dispatch.CallFunc {
	return func(ctx context.Context, a backend.Adapter) (types.Vote, error) {
		resp, err := a.Call(ctx, []backend.Message{{Role: "user", Content: prompt}}, backend.CallOptions{})
		if err != nil {
			return types.Vote{}, err
		}
		return parseVote(resp.Text, cq, method)
	}
}

// callOne invokes a single named backend outside a dispatch (tie-break
// and escalation calls).
func (s *Solver) callOne(ctx context.Context, id string, cq types.ClassifiedQuestion, method string, timeout time.Duration) (types.Vote, error) {
	a, ok := s.pool.Get(id)
	if !ok {
		return types.Vote{}, fmt.Errorf("unknown backend id %q", id)
	}
	prompt, err := sectionPrompt(cq)
	if err != nil {
		return types.Vote{}, err
	}

	start := time.Now()
	resp, err := a.Call(ctx, []backend.Message{{Role: "user", Content: prompt}}, backend.CallOptions{Timeout: timeout})
	if err != nil {
		return types.Vote{}, err
	}
	vote, err := parseVote(resp.Text, cq, method)
	if err != nil {
		return types.Vote{}, err
	}
	vote.BackendID = id
	vote.Elapsed = time.Since(start)
	return vote, nil
}

// votePayload is the structured answer requested from every backend.
type votePayload struct {
	Answer       string            `json:"answer"`
	Confidence   float64           `json:"confidence"`
	Evidence     []string          `json:"evidence"`
	Eliminations map[string]string `json:"eliminations"`
	Code         string            `json:"verification_code"`
	Substitution string            `json:"substitution_check"`
}

// parseVote decodes a backend's structured output into a Vote. It fails
// explicitly on missing answers rather than guessing from free text.
func parseVote(text string, cq types.ClassifiedQuestion, method string) (types.Vote, error) {
	var p votePayload
	if err := backend.DecodeJSON([]byte(text), &p); err != nil {
		return types.Vote{}, err
	}
	answer := canonicalAnswer(cq.Question, p.Answer)
	if answer == "" {
		return types.Vote{}, fmt.Errorf("backend output has no answer")
	}

	v := types.Vote{
		Answer:     answer,
		Confidence: p.Confidence,
		Method:     method,
		Evidence:   p.Evidence,
		Code:       p.Code,
	}
	if p.Substitution != "" {
		v.Evidence = append(v.Evidence, "substitution: "+p.Substitution)
	}
	v.ClampConfidence()
	return v, nil
}

// majorityVote reduces votes to a single choice. The answer group with
// the most genuine votes wins and its most confident member represents
// it; without a strict plurality the single most confident vote wins.
// The returned bool reports whether a strict plurality existed.
func majorityVote(votes []types.Vote) (types.Vote, bool) {
	genuine := make([]types.Vote, 0, len(votes))
	for _, v := range votes {
		if !v.Fallback {
			genuine = append(genuine, v)
		}
	}
	// All-fallback dispatches still need an answer.
	if len(genuine) == 0 {
		genuine = votes
	}

	type group struct {
		answer string
		votes  []types.Vote
	}
	var groups []group
	for _, v := range genuine {
		placed := false
		for i := range groups {
			if Equivalent(groups[i].answer, v.Answer) {
				groups[i].votes = append(groups[i].votes, v)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{answer: v.Answer, votes: []types.Vote{v}})
		}
	}

	best, second := -1, -1
	bestIdx := 0
	for i, g := range groups {
		switch {
		case len(g.votes) > best:
			second = best
			best = len(g.votes)
			bestIdx = i
		case len(g.votes) > second:
			second = len(g.votes)
		}
	}

	if best > second {
		return mostConfident(groups[bestIdx].votes), true
	}
	return mostConfident(genuine), false
}

func mostConfident(votes []types.Vote) types.Vote {
	chosen := votes[0]
	for _, v := range votes[1:] {
		if v.Confidence > chosen.Confidence {
			chosen = v
		}
	}
	return chosen
}
