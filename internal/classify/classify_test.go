// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/pkg/types"
)

func TestHeuristic_MathQuestion(t *testing.T) {
	cq := Heuristic(types.Question{
		Prompt: "Solve the equation 3x + 7 = 22. What is the value of x?",
	})
	assert.Equal(t, types.SectionMath, cq.Section)
	assert.Equal(t, "algebra", cq.Subdomain)
	assert.False(t, cq.HasFigure)
}

func TestHeuristic_GeometryWithFigure(t *testing.T) {
	cq := Heuristic(types.Question{
		Prompt: "In the figure, the triangle has an angle of 40 degrees and the area of the shaded region equals x.",
	})
	assert.Equal(t, types.SectionMath, cq.Section)
	assert.Equal(t, "geometry", cq.Subdomain)
	assert.True(t, cq.HasFigure)
}

func TestHeuristic_ReadingDefault(t *testing.T) {
	cq := Heuristic(types.Question{
		Prompt: "The author of the passage suggests that early railways changed rural life. Which choice provides the best evidence?",
		Choices: []string{
			"Lines 3-5", "Lines 10-12", "Lines 20-22", "Lines 30-31",
		},
	})
	assert.Equal(t, types.SectionReadingWriting, cq.Section)
	assert.Equal(t, "comprehension", cq.Subdomain)
}

func TestHeuristic_GrammarSubdomain(t *testing.T) {
	cq := Heuristic(types.Question{
		Prompt: "Which choice completes the text so that the underlined portion uses a comma correctly?",
	})
	assert.Equal(t, types.SectionReadingWriting, cq.Section)
	assert.Equal(t, "grammar", cq.Subdomain)
}

func TestHeuristic_FigureRefForcesFlag(t *testing.T) {
	cq := Heuristic(types.Question{
		Prompt:    "Which choice best describes the trend?",
		FigureRef: "fig-7",
	})
	assert.True(t, cq.HasFigure)
}

// fakeAdapter returns a canned response or error.
type fakeAdapter struct {
	id   string
	text string
	err  error
}

func (f fakeAdapter) ID() string { return f.id }
func (f fakeAdapter) Call(context.Context, []backend.Message, backend.CallOptions) (backend.Response, error) {
	if f.err != nil {
		return backend.Response{}, f.err
	}
	return backend.Response{Text: f.text}, nil
}

func poolWith(a backend.Adapter) backend.Pool {
	return backend.Pool{a.ID(): a}
}

func TestClassify_UsesBackendResult(t *testing.T) {
	c := New(poolWith(fakeAdapter{
		id:   "cheap",
		text: "```json\n{\"section\": \"math\", \"subdomain\": \"statistics\", \"has_figure\": true}\n```",
	}), types.ClassifyConfig{Backend: "cheap", Timeout: time.Second})

	cq := c.Classify(context.Background(), types.Question{Prompt: "A question."})
	assert.Equal(t, types.SectionMath, cq.Section)
	assert.Equal(t, "statistics", cq.Subdomain)
	assert.True(t, cq.HasFigure)
}

func TestClassify_BackendErrorFallsBack(t *testing.T) {
	c := New(poolWith(fakeAdapter{
		id:  "cheap",
		err: errors.New("timeout"),
	}), types.ClassifyConfig{Backend: "cheap", Timeout: time.Second})

	cq := c.Classify(context.Background(), types.Question{
		Prompt: "Solve the equation 2x = 10 for the value of x.",
	})
	assert.Equal(t, types.SectionMath, cq.Section)
}

func TestClassify_MalformedOutputFallsBack(t *testing.T) {
	c := New(poolWith(fakeAdapter{
		id:   "cheap",
		text: "it looks like a geometry question to me",
	}), types.ClassifyConfig{Backend: "cheap", Timeout: time.Second})

	cq := c.Classify(context.Background(), types.Question{
		Prompt: "The author of the passage argues that...",
	})
	assert.Equal(t, types.SectionReadingWriting, cq.Section)
}

func TestClassify_BogusSectionFallsBack(t *testing.T) {
	c := New(poolWith(fakeAdapter{
		id:   "cheap",
		text: `{"section": "science", "subdomain": "physics"}`,
	}), types.ClassifyConfig{Backend: "cheap", Timeout: time.Second})

	cq := c.Classify(context.Background(), types.Question{
		Prompt: "The author of the passage argues that...",
	})
	assert.Equal(t, types.SectionReadingWriting, cq.Section)
}

func TestClassify_NoBackendConfigured(t *testing.T) {
	c := New(backend.Pool{}, types.ClassifyConfig{})
	cq := c.Classify(context.Background(), types.Question{
		Prompt: "Solve the equation x + 1 = 2 for the value of x.",
	})
	assert.Equal(t, types.SectionMath, cq.Section)
}
