// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dispatch coordinates the concurrent fan-out of one task over
// several reasoning backends and the fan-in of their votes. It owns the
// race logic of the pipeline: per-call timeouts, a whole-batch deadline,
// early-consensus short-circuiting over a fast quorum, and absorption of
// individual backend failures into fallback votes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// ErrNoVotes reports a dispatch whose whole-batch deadline elapsed with
// zero votes collected. It is the only failure the dispatcher surfaces;
// everything else becomes a fallback vote.
var ErrNoVotes = errors.New("dispatch: deadline elapsed with no votes")

// fallbackConfidence is assigned to votes synthesized from failed calls.
const fallbackConfidence = 0.1

// CallFunc invokes one backend for the task being dispatched and converts
// its raw output into a normalized vote. Implementations must honor ctx.
type CallFunc func(ctx context.Context, a backend.Adapter) (types.Vote, error)

// ConsensusPolicy describes the early-consensus short circuit: when every
// backend in Quorum has produced a genuine (non-fallback) vote and all
// their answers agree, the dispatch returns the agreeing votes
// immediately instead of waiting out slower backends.
type ConsensusPolicy struct {
	// Quorum lists the backend IDs that must all agree.
	Quorum []string

	// Agree compares two answers. Nil means case-insensitive string
	// equality after trimming.
	Agree func(a, b string) bool
}

func (p *ConsensusPolicy) agree(a, b string) bool {
	if p.Agree != nil {
		return p.Agree(a, b)
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Options bound one dispatch.
type Options struct {
	// PerCallTimeout bounds each backend call.
	PerCallTimeout time.Duration

	// TotalTimeout bounds the whole batch and takes precedence: when it
	// elapses the dispatch returns whatever votes exist.
	TotalTimeout time.Duration

	// Consensus, when non-nil, enables the early short circuit.
	Consensus *ConsensusPolicy

	// Fallback builds the vote recorded for a failed backend call. Nil
	// selects a minimal low-confidence vote with an empty answer.
	Fallback func(backendID string, err error) types.Vote
}

func (o Options) fallback(id string, err error) types.Vote {
	var v types.Vote
	if o.Fallback != nil {
		v = o.Fallback(id, err)
	} else {
		v = types.Vote{Confidence: fallbackConfidence}
	}
	v.BackendID = id
	v.Fallback = true
	return v
}

// Run launches call once per adapter concurrently and accumulates votes
// in completion order. It guarantees one vote per requested backend
// unless the batch deadline or early consensus cuts the batch short, and
// it never returns an empty vote list without ErrNoVotes.
//
// Callers must not assume the first vote is the most reliable; completion
// order is non-deterministic.
func Run(ctx context.Context, adapters []backend.Adapter, call CallFunc, opts Options) ([]types.Vote, error) {
	if len(adapters) == 0 {
		return nil, errors.New("dispatch: no backends requested")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so abandoned calls can still deposit their result and
	// exit; anything arriving after return is discarded with the
	// channel. No returned state is ever mutated by a straggler.
	results := make(chan types.Vote, len(adapters))

	for _, a := range adapters {
		go func(a backend.Adapter) {
			callCtx := runCtx
			if opts.PerCallTimeout > 0 {
				var cancelCall context.CancelFunc
				callCtx, cancelCall = context.WithTimeout(runCtx, opts.PerCallTimeout)
				defer cancelCall()
			}

			start := time.Now()
			vote, err := safeCall(callCtx, a, call)
			if err != nil {
				vote = opts.fallback(a.ID(), err)
			}
			vote.BackendID = a.ID()
			vote.Elapsed = time.Since(start)
			vote.ClampConfidence()
			results <- vote
		}(a)
	}

	var deadline <-chan time.Time
	if opts.TotalTimeout > 0 {
		timer := time.NewTimer(opts.TotalTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	votes := make([]types.Vote, 0, len(adapters))
	for len(votes) < len(adapters) {
		select {
		case v := <-results:
			votes = append(votes, v)
			if agreed, ok := earlyConsensus(votes, opts.Consensus); ok {
				cancel()
				return agreed, nil
			}
		case <-deadline:
			if len(votes) == 0 {
				return nil, ErrNoVotes
			}
			return votes, nil
		case <-ctx.Done():
			if len(votes) == 0 {
				return nil, ctx.Err()
			}
			return votes, nil
		}
	}
	return votes, nil
}

// safeCall absorbs a panicking CallFunc into an error so one broken
// adapter cannot take down the whole dispatch.
func safeCall(ctx context.Context, a backend.Adapter, call CallFunc) (vote types.Vote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", a.ID(), r)
		}
	}()
	return call(ctx, a)
}

// earlyConsensus reports whether every quorum member has a genuine vote
// and all quorum answers agree. On success it returns just the agreeing
// quorum votes, in their completion order.
func earlyConsensus(votes []types.Vote, policy *ConsensusPolicy) ([]types.Vote, bool) {
	if policy == nil || len(policy.Quorum) == 0 {
		return nil, false
	}

	quorum := make([]types.Vote, 0, len(policy.Quorum))
	for _, id := range policy.Quorum {
		found := false
		for _, v := range votes {
			if v.BackendID == id && !v.Fallback {
				quorum = append(quorum, v)
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	for i := 1; i < len(quorum); i++ {
		if !policy.agree(quorum[0].Answer, quorum[i].Answer) {
			return nil, false
		}
	}

	// Preserve completion order for the returned subset.
	agreed := make([]types.Vote, 0, len(quorum))
	for _, v := range votes {
		for _, q := range quorum {
			if v.BackendID == q.BackendID {
				agreed = append(agreed, v)
				break
			}
		}
	}
	return agreed, true
}
