// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns a question to an exam section and subdomain
// and detects whether it depends on a visual figure. Classification is
// best-effort: a backend call with a short timeout, falling back to a
// deterministic keyword classifier. It never fails its caller.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/pkg/types"
)

const defaultTimeout = 4 * time.Second

// Classifier classifies questions, optionally with backend assistance.
type Classifier struct {
	adapter backend.Adapter // nil means heuristic-only
	timeout time.Duration
}

// New builds a Classifier. When cfg.Backend is empty or unknown in the
// pool, the classifier runs heuristic-only.
func New(pool backend.Pool, cfg types.ClassifyConfig) *Classifier {
	c := &Classifier{timeout: cfg.Timeout}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if cfg.Backend != "" {
		if a, ok := pool.Get(cfg.Backend); ok {
			c.adapter = a
		}
	}
	return c
}

// classifyPayload is the structured output requested from the backend.
type classifyPayload struct {
	Section   string `json:"section"`
	Subdomain string `json:"subdomain"`
	HasFigure bool   `json:"has_figure"`
}

// Classify returns a best-effort classification. On backend timeout or
// malformed output it silently degrades to the keyword heuristic.
func (c *Classifier) Classify(ctx context.Context, q types.Question) types.ClassifiedQuestion {
	fallback := Heuristic(q)
	if c.adapter == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.adapter.Call(callCtx, []backend.Message{
		{Role: "user", Content: classifyPrompt(q)},
	}, backend.CallOptions{MaxTokens: 200})
	if err != nil {
		return fallback
	}

	var p classifyPayload
	if err := backend.DecodeJSON([]byte(resp.Text), &p); err != nil {
		return fallback
	}

	section := types.Section(strings.ToLower(strings.TrimSpace(p.Section)))
	if section != types.SectionMath && section != types.SectionReadingWriting {
		return fallback
	}

	subdomain := strings.ToLower(strings.TrimSpace(p.Subdomain))
	if subdomain == "" {
		subdomain = fallback.Subdomain
	}

	return types.ClassifiedQuestion{
		Question:  q,
		Section:   section,
		Subdomain: subdomain,
		HasFigure: p.HasFigure || fallback.HasFigure,
	}
}

func classifyPrompt(q types.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Classify this exam question. Respond with only a JSON object:
{"section": "math" or "reading_writing", "subdomain": "<short label, e.g. algebra, geometry, grammar, comprehension>", "has_figure": true or false}

has_figure is true only if answering requires a chart, graph, diagram, or figure that is referenced but not included in the text.

Question:
%s
`, q.Prompt)
	if len(q.Choices) > 0 {
		b.WriteString("\nChoices:\n")
		for i, choice := range q.Choices {
			fmt.Fprintf(&b, "%s) %s\n", q.ChoiceLetter(i), choice)
		}
	}
	return b.String()
}
