// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify re-checks a chosen answer independently of the votes
// that produced it. Math answers are recomputed in the sandbox and
// sanity-checked against the quantity they describe; reading/writing
// answers are validated against their quoted evidence and re-scored by
// independent backends. Verification never fails the pipeline: every
// outcome is a report, and a sub-check that cannot finish inside its
// timeout simply counts as failed.
package verify

import (
	"context"
	"io"
	"time"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/sandbox"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// Verifier runs the domain-specific verification for one chosen vote.
type Verifier struct {
	pool    backend.Pool
	sandbox sandbox.Runner
	cfg     types.VerifyConfig
	w       io.Writer
}

// New builds a Verifier. runner may be nil; math recomputation is then
// skipped. w receives progress lines and may be nil.
func New(pool backend.Pool, runner sandbox.Runner, cfg types.VerifyConfig, w io.Writer) *Verifier {
	if w == nil {
		w = io.Discard
	}
	if cfg.SubCheckTimeout <= 0 {
		cfg.SubCheckTimeout = 10 * time.Second
	}
	if cfg.MinRescore <= 0 {
		cfg.MinRescore = 0.5
	}
	if cfg.DisagreementGap <= 0 {
		cfg.DisagreementGap = 0.4
	}
	return &Verifier{pool: pool, sandbox: runner, cfg: cfg, w: w}
}

// Verify re-checks the chosen vote and reports the outcome. The report
// passes only when every applicable sub-check passed.
func (v *Verifier) Verify(ctx context.Context, cq types.ClassifiedQuestion, chosen types.Vote) types.VerificationReport {
	var r report
	if cq.Section == types.SectionMath {
		v.verifyMath(ctx, cq, chosen, &r)
	} else {
		v.verifyReading(ctx, cq, chosen, &r)
	}
	return r.build()
}

// report accumulates sub-check outcomes.
type report struct {
	checks []string
	notes  []string
	passed int
	failed int
}

func (r *report) pass(check, note string) {
	r.checks = append(r.checks, check)
	r.passed++
	if note != "" {
		r.notes = append(r.notes, check+": "+note)
	}
}

func (r *report) fail(check, note string) {
	r.checks = append(r.checks, check)
	r.failed++
	r.notes = append(r.notes, check+": "+note)
}

func (r *report) build() types.VerificationReport {
	total := r.passed + r.failed
	rep := types.VerificationReport{
		Passed: r.failed == 0,
		Score:  1,
		Notes:  r.notes,
		Checks: r.checks,
	}
	if total > 0 {
		rep.Score = float64(r.passed) / float64(total)
	}
	return rep
}

// runCheck bounds one sub-check. An overrun counts as a failure with a
// timeout note, never as a pipeline error.
func (v *Verifier) runCheck(ctx context.Context, r *report, name string, fn func(ctx context.Context) (bool, string)) {
	checkCtx, cancel := context.WithTimeout(ctx, v.cfg.SubCheckTimeout)
	defer cancel()

	type outcome struct {
		ok   bool
		note string
	}
	done := make(chan outcome, 1)
	go func() {
		ok, note := fn(checkCtx)
		done <- outcome{ok, note}
	}()

	select {
	case o := <-done:
		if o.ok {
			r.pass(name, o.note)
		} else {
			r.fail(name, o.note)
		}
	case <-checkCtx.Done():
		r.fail(name, "timed out after "+v.cfg.SubCheckTimeout.String())
	}
}
