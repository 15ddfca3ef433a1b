// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solve

import (
	"context"
	"fmt"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/dispatch"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// solveReading races the configured backends over a reading/writing
// question and picks the majority answer.
func (s *Solver) solveReading(ctx context.Context, cq types.ClassifiedQuestion, adapters []backend.Adapter) (types.Vote, []types.Vote, error) {
	prompt, err := renderPrompt(readingPromptTmpl, cq)
	if err != nil {
		return types.Vote{}, nil, err
	}

	votes, err := dispatch.Run(ctx, adapters, s.callFunc(cq, prompt, "reading"), s.dispatchOptions(cq))
	if err != nil {
		return types.Vote{}, nil, err
	}

	chosen, plurality := majorityVote(votes)
	if !plurality {
		fmt.Fprintf(s.w, "no majority for %s, using most confident vote (%s)\n", cq.ID, chosen.BackendID)
	}
	return chosen, votes, nil
}
