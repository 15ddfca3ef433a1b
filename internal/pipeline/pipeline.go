// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline wires the resolution stages together: classify,
// solve, verify, optionally escalate, and aggregate. Resolve always
// returns a usable answer; any failure inside a stage degrades the
// result instead of surfacing an error.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/scoresummit/exam-engine/internal/aggregate"
	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/classify"
	"github.com/scoresummit/exam-engine/internal/metrics"
	"github.com/scoresummit/exam-engine/internal/sandbox"
	"github.com/scoresummit/exam-engine/internal/solve"
	"github.com/scoresummit/exam-engine/internal/verify"
	"github.com/scoresummit/exam-engine/pkg/types"
)

const (
	defaultTotalBudget = 90 * time.Second

	// degradedConfidence is reported when the pipeline could not produce
	// a genuine answer at all.
	degradedConfidence = 0.1

	// minEscalationBudget is the remaining budget below which escalation
	// is skipped as pointless.
	minEscalationBudget = 2 * time.Second

	// escalationMargin is how much higher an escalation vote's
	// confidence must be to displace the original answer on
	// disagreement when verification did not already reject it.
	escalationMargin = 0.1
)

// Recorder persists one finished resolution. The history store
// implements it; a nil recorder disables persistence.
type Recorder interface {
	Record(ctx context.Context, q types.Question, res types.ResolvedAnswer) error
}

// Pipeline resolves questions end to end.
type Pipeline struct {
	classifier *classify.Classifier
	solver     *solve.Solver
	verifier   *verify.Verifier
	aggregator *aggregate.Aggregator
	budget     time.Duration
	w          io.Writer

	recorder Recorder
	registry *metrics.Registry
}

// New assembles a pipeline from the configured stages. runner may be
// nil when no sandbox is available. w receives progress lines and may
// be nil.
func New(pool backend.Pool, runner sandbox.Runner, cfg types.PipelineConfig, w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	budget := cfg.TotalBudget
	if budget <= 0 {
		budget = defaultTotalBudget
	}
	return &Pipeline{
		classifier: classify.New(pool, cfg.Classify),
		solver:     solve.New(pool, runner, cfg.Solver, cfg.Dispatch, w),
		verifier:   verify.New(pool, runner, cfg.Verify, w),
		aggregator: aggregate.New(cfg.Aggregate),
		budget:     budget,
		w:          w,
	}
}

// WithRecorder attaches a resolution recorder.
func (p *Pipeline) WithRecorder(rec Recorder) *Pipeline {
	p.recorder = rec
	return p
}

// WithMetrics attaches a metrics registry.
func (p *Pipeline) WithMetrics(reg *metrics.Registry) *Pipeline {
	p.registry = reg
	return p
}

// Resolve answers one question. It never returns an error and never
// panics: stage failures and panics alike degrade to a low-confidence
// placeholder answer so a batch run always produces one result per
// question.
func (p *Pipeline) Resolve(ctx context.Context, q types.Question) (res types.ResolvedAnswer) {
	start := time.Now()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(p.w, "panic resolving %s: %v\n", q.ID, r)
			res = p.degraded(q, types.ClassifiedQuestion{Question: q}, time.Since(start))
		}
		p.finish(q, res)
	}()

	runCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	cq := p.classifier.Classify(runCtx, q)
	fmt.Fprintf(p.w, "classified %s as %s/%s\n", q.ID, cq.Section, cq.Subdomain)

	chosen, votes, err := p.solver.Solve(runCtx, cq)
	if err != nil {
		fmt.Fprintf(p.w, "solving %s failed: %v\n", q.ID, err)
		res = p.degraded(q, cq, time.Since(start))
		return res
	}

	if chosen.Fallback {
		// Every backend failed; the chosen vote is a placeholder and
		// neither verification nor escalation can rescue it.
		fmt.Fprintf(p.w, "no genuine votes for %s\n", q.ID)
		res = p.degraded(q, cq, time.Since(start))
		res.Votes = votes
		return res
	}

	report := p.verifier.Verify(runCtx, cq, chosen)

	var (
		escVote     *types.Vote
		escAttempt  bool
		substituted bool
	)
	if p.shouldEscalate(runCtx, chosen, report) {
		escAttempt = true
		v, err := p.solver.Escalate(runCtx, cq)
		if err != nil {
			fmt.Fprintf(p.w, "escalation for %s failed: %v\n", q.ID, err)
		} else {
			escVote = &v
			// A disagreeing escalation displaces the answer when it is
			// materially more confident or verification already rejected
			// the original. The replacement then gets its own
			// verification so the report describes the answer being
			// finalized, never the discarded one.
			if !solve.Equivalent(v.Answer, chosen.Answer) &&
				(v.Confidence >= chosen.Confidence+escalationMargin || !report.Passed) {
				substituted = true
				report = p.verifier.Verify(runCtx, cq, v)
			}
		}
	}

	res = p.aggregator.Aggregate(aggregate.Input{
		Question:            cq,
		Chosen:              chosen,
		Votes:               votes,
		Verification:        report,
		Escalation:          escVote,
		EscalationAttempted: escAttempt,
		Substituted:         substituted,
		Elapsed:             time.Since(start),
	})
	return res
}

// shouldEscalate applies the single-escalation policy: a weak or
// rejected answer triggers the stronger backend, provided one is
// configured and enough budget remains.
func (p *Pipeline) shouldEscalate(ctx context.Context, chosen types.Vote, report types.VerificationReport) bool {
	if p.solver.Config().EscalationBackend == "" {
		return false
	}
	if chosen.Confidence >= p.solver.Config().EscalationThreshold && report.Passed {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < minEscalationBudget {
		return false
	}
	return ctx.Err() == nil
}

// degraded is the placeholder result for a resolution that produced no
// genuine answer.
func (p *Pipeline) degraded(q types.Question, cq types.ClassifiedQuestion, elapsed time.Duration) types.ResolvedAnswer {
	return types.ResolvedAnswer{
		QuestionID:  q.ID,
		Answer:      solve.DefaultAnswer(q),
		Confidence:  degradedConfidence,
		Section:     cq.Section,
		Subdomain:   cq.Subdomain,
		Elapsed:     elapsed,
		Explanation: "no backend produced an answer; placeholder returned",
	}
}

// finish records the result with the attached sinks.
func (p *Pipeline) finish(q types.Question, res types.ResolvedAnswer) {
	if p.registry != nil {
		p.registry.Record(res)
	}
	if p.recorder != nil {
		// Persist with a fresh context so a spent budget cannot drop
		// the record.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.recorder.Record(ctx, q, res); err != nil {
			fmt.Fprintf(p.w, "warning: recording %s: %v\n", q.ID, err)
		}
	}
}
