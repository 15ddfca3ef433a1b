// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoresummit/exam-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(types.HistoryConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *Store, prompt string, res types.ResolvedAnswer) {
	t.Helper()
	require.NoError(t, s.Record(context.Background(), types.Question{ID: res.QuestionID, Prompt: prompt}, res))
}

func TestStore_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "If 3x = 36, what is the value of x?", types.ResolvedAnswer{
		QuestionID: "q1",
		Answer:     "12",
		Confidence: 0.92,
		Section:    types.SectionMath,
		Subdomain:  "algebra",
		Elapsed:    3 * time.Second,
		Verification: types.VerificationReport{
			Passed: true,
			Score:  1,
		},
		Votes: []types.Vote{
			{BackendID: "b1", Answer: "12", Confidence: 0.85, Method: "math"},
			{BackendID: "b2", Answer: "12", Confidence: 0.8, Method: "math", Fallback: false},
		},
	})

	entries, err := s.List(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "q1", e.QuestionID)
	assert.Equal(t, "12", e.Answer)
	assert.Equal(t, types.SectionMath, e.Section)
	assert.True(t, e.VerificationPassed)
	assert.Equal(t, 3*time.Second, e.Elapsed)
	assert.False(t, e.CreatedAt.IsZero())
	require.Len(t, e.Votes, 2)
	assert.Equal(t, "b1", e.Votes[0].BackendID)
}

func TestStore_SectionFilter(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "math prompt with equation", types.ResolvedAnswer{QuestionID: "m1", Answer: "5", Section: types.SectionMath})
	record(t, s, "reading prompt about the author", types.ResolvedAnswer{QuestionID: "r1", Answer: "A", Section: types.SectionReadingWriting})

	entries, err := s.List(context.Background(), QueryOptions{Section: types.SectionMath})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].QuestionID)
}

func TestStore_EscalatedFilter(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "first", types.ResolvedAnswer{QuestionID: "q1", Answer: "A", Escalated: true})
	record(t, s, "second", types.ResolvedAnswer{QuestionID: "q2", Answer: "B"})

	escalated := true
	entries, err := s.List(context.Background(), QueryOptions{Escalated: &escalated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].QuestionID)
}

func TestStore_FullTextSearch(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "What is the probability that the marble is red?", types.ResolvedAnswer{QuestionID: "q1", Answer: "0.25"})
	record(t, s, "Which choice best supports the claim?", types.ResolvedAnswer{QuestionID: "q2", Answer: "C"})

	entries, err := s.List(context.Background(), QueryOptions{Query: "marble"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].QuestionID)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "older", types.ResolvedAnswer{QuestionID: "q1", Answer: "A"})
	time.Sleep(2 * time.Millisecond)
	record(t, s, "newer", types.ResolvedAnswer{QuestionID: "q2", Answer: "B"})

	entries, err := s.List(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "q2", entries[0].QuestionID)
}

func TestStore_MaxResults(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		record(t, s, "prompt", types.ResolvedAnswer{QuestionID: "q", Answer: "A"})
	}
	entries, err := s.List(context.Background(), QueryOptions{MaxResults: 3})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStore_ExportJSON(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "export me", types.ResolvedAnswer{QuestionID: "q1", Answer: "A", Confidence: 0.9})

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(context.Background(), &buf, QueryOptions{}))

	var entries []Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "export me", entries[0].Prompt)
}

func TestStore_ExportYAML(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "yaml entry", types.ResolvedAnswer{QuestionID: "q1", Answer: "B"})

	var buf bytes.Buffer
	require.NoError(t, s.ExportYAML(context.Background(), &buf, QueryOptions{}))
	assert.Contains(t, buf.String(), "yaml entry")
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore(types.HistoryConfig{})
	assert.Error(t, err)
}
