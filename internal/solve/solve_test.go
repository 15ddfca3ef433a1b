// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solve

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/sandbox"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// fakeAdapter returns a canned response, optionally after a delay.
type fakeAdapter struct {
	id    string
	text  string
	err   error
	delay time.Duration
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Call(ctx context.Context, _ []backend.Message, _ backend.CallOptions) (backend.Response, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return backend.Response{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return backend.Response{}, f.err
	}
	return backend.Response{Text: f.text}, nil
}

// fakeRunner maps code snippets to canned sandbox results.
type fakeRunner struct {
	results map[string]sandbox.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, code string) (sandbox.Result, error) {
	if f.err != nil {
		return sandbox.Result{}, f.err
	}
	return f.results[code], nil
}

func votePayloadJSON(answer string, confidence float64, code string) string {
	if code != "" {
		return fmt.Sprintf(`{"answer": %q, "confidence": %g, "verification_code": %q}`, answer, confidence, code)
	}
	return fmt.Sprintf(`{"answer": %q, "confidence": %g, "evidence": ["line 3"]}`, answer, confidence)
}

func testPool(adapters ...*fakeAdapter) backend.Pool {
	pool := make(backend.Pool, len(adapters))
	for _, a := range adapters {
		pool[a.id] = a
	}
	return pool
}

func readingQuestion() types.ClassifiedQuestion {
	return types.ClassifiedQuestion{
		Question: types.Question{
			ID:      "q-rw-1",
			Prompt:  "Which choice best supports the claim?",
			Choices: []string{"first", "second", "third", "fourth"},
		},
		Section:   types.SectionReadingWriting,
		Subdomain: "comprehension",
	}
}

func mathQuestion() types.ClassifiedQuestion {
	return types.ClassifiedQuestion{
		Question: types.Question{
			ID:     "q-m-1",
			Prompt: "If 3x = 36, what is the value of x?",
		},
		Section:   types.SectionMath,
		Subdomain: "algebra",
	}
}

func newTestSolver(pool backend.Pool, runner sandbox.Runner, cfg types.SolverConfig) *Solver {
	dispatchCfg := types.DispatchConfig{
		PerCallTimeout: time.Second,
		TotalTimeout:   2 * time.Second,
	}
	return New(pool, runner, cfg, dispatchCfg, nil)
}

func TestMajorityVote_PluralityWins(t *testing.T) {
	votes := []types.Vote{
		{BackendID: "b1", Answer: "A", Confidence: 0.8},
		{BackendID: "b2", Answer: "A", Confidence: 0.7},
		{BackendID: "b3", Answer: "B", Confidence: 0.95},
	}
	chosen, plurality := majorityVote(votes)
	assert.True(t, plurality)
	assert.Equal(t, "A", chosen.Answer)
	// The group representative is its most confident member.
	assert.Equal(t, "b1", chosen.BackendID)
}

func TestMajorityVote_NoMajorityPicksMostConfident(t *testing.T) {
	votes := []types.Vote{
		{BackendID: "b1", Answer: "A", Confidence: 0.6},
		{BackendID: "b2", Answer: "B", Confidence: 0.9},
		{BackendID: "b3", Answer: "C", Confidence: 0.5},
	}
	chosen, plurality := majorityVote(votes)
	assert.False(t, plurality)
	assert.Equal(t, "B", chosen.Answer)
}

func TestMajorityVote_FallbacksDoNotFormMajorities(t *testing.T) {
	votes := []types.Vote{
		{BackendID: "b1", Answer: "A", Confidence: 0.1, Fallback: true},
		{BackendID: "b2", Answer: "A", Confidence: 0.1, Fallback: true},
		{BackendID: "b3", Answer: "B", Confidence: 0.7},
	}
	chosen, plurality := majorityVote(votes)
	assert.True(t, plurality)
	assert.Equal(t, "B", chosen.Answer)
}

func TestMajorityVote_AllFallbacksStillAnswer(t *testing.T) {
	votes := []types.Vote{
		{BackendID: "b1", Answer: "A", Confidence: 0.1, Fallback: true},
		{BackendID: "b2", Answer: "A", Confidence: 0.1, Fallback: true},
	}
	chosen, _ := majorityVote(votes)
	assert.Equal(t, "A", chosen.Answer)
}

func TestMajorityVote_EquivalentAnswersGroup(t *testing.T) {
	votes := []types.Vote{
		{BackendID: "b1", Answer: "1/2", Confidence: 0.6},
		{BackendID: "b2", Answer: "0.5", Confidence: 0.8},
		{BackendID: "b3", Answer: "2", Confidence: 0.9},
	}
	chosen, plurality := majorityVote(votes)
	assert.True(t, plurality)
	assert.Equal(t, "0.5", chosen.Answer)
}

func TestSolve_ReadingMajority(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("A", 0.8, "")},
		&fakeAdapter{id: "b2", text: votePayloadJSON("A", 0.7, "")},
		&fakeAdapter{id: "b3", text: votePayloadJSON("B", 0.9, "")},
	)
	s := newTestSolver(pool, nil, types.SolverConfig{Backends: []string{"b1", "b2", "b3"}})

	chosen, votes, err := s.Solve(context.Background(), readingQuestion())
	require.NoError(t, err)
	assert.Equal(t, "A", chosen.Answer)
	assert.Len(t, votes, 3)
	assert.Equal(t, []string{"line 3"}, chosen.Evidence)
}

func TestSolve_FailedBackendBecomesFallback(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("C", 0.75, "")},
		&fakeAdapter{id: "b2", err: errors.New("boom")},
	)
	s := newTestSolver(pool, nil, types.SolverConfig{Backends: []string{"b1", "b2"}})

	chosen, votes, err := s.Solve(context.Background(), readingQuestion())
	require.NoError(t, err)
	assert.Equal(t, "C", chosen.Answer)
	require.Len(t, votes, 2)

	var fallback types.Vote
	for _, v := range votes {
		if v.Fallback {
			fallback = v
		}
	}
	assert.Equal(t, "b2", fallback.BackendID)
	assert.Equal(t, "A", fallback.Answer)
	assert.InDelta(t, 0.1, fallback.Confidence, 1e-9)
}

func TestSolve_MathCrossCheckBoostsOnMatch(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("1/2", 0.7, "result = 1/2")},
	)
	runner := &fakeRunner{results: map[string]sandbox.Result{
		"result = 1/2": {OK: true, Result: "0.5"},
	}}
	s := newTestSolver(pool, runner, types.SolverConfig{Backends: []string{"b1"}})

	q := mathQuestion()
	chosen, _, err := s.Solve(context.Background(), q)
	require.NoError(t, err)
	// "1/2" and 0.5 are equivalent, so the vote gets the match boost.
	assert.Equal(t, "1/2", chosen.Answer)
	assert.InDelta(t, 0.85, chosen.Confidence, 1e-9)
	assert.Equal(t, "0.5", chosen.ExecResult)
}

func TestSolve_MathMismatchPenalized(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("10", 0.8, "result = 36/3")},
	)
	runner := &fakeRunner{results: map[string]sandbox.Result{
		"result = 36/3": {OK: true, Result: "12"},
	}}
	s := newTestSolver(pool, runner, types.SolverConfig{Backends: []string{"b1"}})

	chosen, _, err := s.Solve(context.Background(), mathQuestion())
	require.NoError(t, err)
	// Confidence 0.8 is above the override threshold: the penalty applies
	// but the claimed answer stands.
	assert.Equal(t, "10", chosen.Answer)
	assert.InDelta(t, 0.6, chosen.Confidence, 1e-9)
}

func TestSolve_MathMismatchOverridesLowConfidence(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("10", 0.4, "result = 36/3")},
	)
	runner := &fakeRunner{results: map[string]sandbox.Result{
		"result = 36/3": {OK: true, Result: "12"},
	}}
	s := newTestSolver(pool, runner, types.SolverConfig{Backends: []string{"b1"}})

	chosen, _, err := s.Solve(context.Background(), mathQuestion())
	require.NoError(t, err)
	assert.Equal(t, "12", chosen.Answer)
	assert.InDelta(t, 0.3, chosen.Confidence, 1e-9)
	assert.Contains(t, chosen.Method, "override")
}

func TestSolve_MathSandboxErrorLeavesVoteUntouched(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("12", 0.7, "result = 36/3")},
	)
	runner := &fakeRunner{err: errors.New("service down")}
	s := newTestSolver(pool, runner, types.SolverConfig{Backends: []string{"b1"}})

	chosen, _, err := s.Solve(context.Background(), mathQuestion())
	require.NoError(t, err)
	assert.Equal(t, "12", chosen.Answer)
	assert.InDelta(t, 0.7, chosen.Confidence, 1e-9)
	assert.Empty(t, chosen.ExecResult)
}

func TestSolve_MathExecutionFailureRecorded(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("12", 0.7, "result = 1/0")},
	)
	runner := &fakeRunner{results: map[string]sandbox.Result{
		"result = 1/0": {OK: false, Error: "ZeroDivisionError"},
	}}
	s := newTestSolver(pool, runner, types.SolverConfig{Backends: []string{"b1"}})

	chosen, _, err := s.Solve(context.Background(), mathQuestion())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, chosen.Confidence, 1e-9)
	assert.Contains(t, chosen.Evidence[len(chosen.Evidence)-1], "ZeroDivisionError")
}

func TestSolve_MathTiebreak(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "b1", text: votePayloadJSON("10", 0.6, "")},
		&fakeAdapter{id: "b2", text: votePayloadJSON("12", 0.6, "")},
		&fakeAdapter{id: "tb", text: votePayloadJSON("12", 0.8, "")},
	)
	s := newTestSolver(pool, nil, types.SolverConfig{
		Backends:        []string{"b1", "b2"},
		TiebreakBackend: "tb",
	})

	chosen, votes, err := s.Solve(context.Background(), mathQuestion())
	require.NoError(t, err)
	assert.Equal(t, "12", chosen.Answer)
	assert.Len(t, votes, 3)
	assert.Equal(t, "tiebreak", votes[2].Method)
}

func TestSolve_UnknownBackend(t *testing.T) {
	s := newTestSolver(testPool(), nil, types.SolverConfig{Backends: []string{"nope"}})
	_, _, err := s.Solve(context.Background(), readingQuestion())
	assert.Error(t, err)
}

func TestEscalate(t *testing.T) {
	pool := testPool(
		&fakeAdapter{id: "strong", text: votePayloadJSON("B", 0.9, "")},
	)
	s := newTestSolver(pool, nil, types.SolverConfig{
		Backends:          []string{"strong"},
		EscalationBackend: "strong",
	})

	vote, err := s.Escalate(context.Background(), readingQuestion())
	require.NoError(t, err)
	assert.Equal(t, "B", vote.Answer)
	assert.Equal(t, "escalation", vote.Method)
	assert.Equal(t, "strong", vote.BackendID)
}

func TestEscalate_NoBackendConfigured(t *testing.T) {
	s := newTestSolver(testPool(), nil, types.SolverConfig{})
	_, err := s.Escalate(context.Background(), readingQuestion())
	assert.Error(t, err)
}

func TestParseVote_ToleratesFencedJSON(t *testing.T) {
	text := "Here is my answer:\n```json\n" + votePayloadJSON("A", 0.7, "") + "\n```"
	v, err := parseVote(text, readingQuestion(), "reading")
	require.NoError(t, err)
	assert.Equal(t, "A", v.Answer)
}

func TestParseVote_MissingAnswer(t *testing.T) {
	_, err := parseVote(`{"confidence": 0.9}`, readingQuestion(), "reading")
	assert.Error(t, err)
}
