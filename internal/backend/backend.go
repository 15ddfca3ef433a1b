// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend provides uniform adapters for the external reasoning
// backends the dispatcher fans out to. Each provider family implements a
// single buildRequest/parseResponse pair per the Strategy pattern; the
// rest of the pipeline only sees the Adapter interface.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// Message is one turn of a backend conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallOptions tune a single backend call. Zero values fall back to the
// adapter's configured defaults.
type CallOptions struct {
	Temperature float64
	MaxTokens   int

	// Timeout bounds the call. The caller (normally the dispatcher)
	// supplies it; zero means no per-call deadline beyond ctx.
	Timeout time.Duration
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the raw text and usage returned by one backend call.
type Response struct {
	Text  string
	Usage Usage
}

// Adapter invokes one named reasoning backend.
type Adapter interface {
	// ID returns the pipeline-level name of the backend.
	ID() string

	// Call sends the messages and returns the raw response text. It
	// fails with a timeout or transport error; the dispatcher converts
	// such failures into fallback votes.
	Call(ctx context.Context, msgs []Message, opts CallOptions) (Response, error)
}

// Pool maps backend IDs to adapters.
type Pool map[string]Adapter

// NewPool builds adapters for every configured backend. API keys come
// from the secrets map, keyed "<family>-api-key".
func NewPool(cfgs []types.BackendConfig, keys map[string]string, client *http.Client) (Pool, error) {
	pool := make(Pool, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("backend config with empty id")
		}
		if _, dup := pool[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate backend id %q", cfg.ID)
		}
		adapter, err := New(cfg, keys[cfg.Family+"-api-key"], client)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", cfg.ID, err)
		}
		pool[cfg.ID] = adapter
	}
	return pool, nil
}

// Get returns the adapter for id.
func (p Pool) Get(id string) (Adapter, bool) {
	a, ok := p[id]
	return a, ok
}

// Pick returns the adapters for the given IDs, failing on any unknown ID.
func (p Pool) Pick(ids []string) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		a, ok := p[id]
		if !ok {
			return nil, fmt.Errorf("unknown backend id %q", id)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
