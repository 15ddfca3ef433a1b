// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/scoresummit/exam-engine/internal/httputil"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// transportRetries bounds retries on rate-limit and gateway errors. The
// dispatcher already absorbs hard failures, so the adapter retries little.
const transportRetries = 1

// HTTPAdapter is the production Adapter backed by a provider HTTP API.
type HTTPAdapter struct {
	id          string
	model       string
	apiKey      string
	url         string
	temperature float64
	maxTokens   int
	fam         family
	client      *http.Client
}

// New builds an HTTPAdapter from a backend config. client may be nil, in
// which case http.DefaultClient is used; the per-call timeout comes from
// CallOptions, not the client.
func New(cfg types.BackendConfig, apiKey string, client *http.Client) (*HTTPAdapter, error) {
	fam, ok := families[cfg.Family]
	if !ok {
		return nil, fmt.Errorf("unknown backend family %q", cfg.Family)
	}
	if client == nil {
		client = http.DefaultClient
	}
	url := cfg.BaseURL
	if url == "" {
		url = fam.defaultURL()
	}
	return &HTTPAdapter{
		id:          cfg.ID,
		model:       cfg.Model,
		apiKey:      apiKey,
		url:         url,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		fam:         fam,
		client:      client,
	}, nil
}

// ID returns the pipeline-level backend name.
func (a *HTTPAdapter) ID() string { return a.id }

// Call sends the messages to the provider and returns the raw text.
func (a *HTTPAdapter) Call(ctx context.Context, msgs []Message, opts CallOptions) (Response, error) {
	if opts.Temperature == 0 {
		opts.Temperature = a.temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = a.maxTokens
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := a.fam.buildRequest(ctx, a.url, a.apiKey, a.model, msgs, opts)
	if err != nil {
		return Response{}, err
	}

	resp, err := httputil.DoWithRetry(ctx, a.client, req, transportRetries)
	if err != nil {
		return Response{}, fmt.Errorf("calling %s: %w", a.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading %s response: %w", a.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("%s returned %d: %s", a.id, resp.StatusCode, truncateBody(body))
	}

	return a.fam.parseResponse(body)
}

// truncateBody keeps error messages readable when providers return HTML
// error pages.
func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
