// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// family shapes requests and parses responses for one provider API.
// Adding a provider means adding one entry here, not branching on
// backend names throughout the pipeline.
type family interface {
	name() string
	defaultURL() string
	buildRequest(ctx context.Context, url, apiKey, model string, msgs []Message, opts CallOptions) (*http.Request, error)
	parseResponse(data []byte) (Response, error)
}

// families is the strategy table keyed by the config Family field.
var families = map[string]family{
	"openrouter": openrouterFamily{},
	"anthropic":  anthropicFamily{},
}

// --- OpenRouter (OpenAI-compatible chat completions) ---

type openrouterFamily struct{}

func (openrouterFamily) name() string       { return "openrouter" }
func (openrouterFamily) defaultURL() string { return "https://openrouter.ai/api/v1/chat/completions" }

type openrouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openrouterResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (f openrouterFamily) buildRequest(ctx context.Context, url, apiKey, model string, msgs []Message, opts CallOptions) (*http.Request, error) {
	body, err := json.Marshal(openrouterRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("HTTP-Referer", "https://scoresummit.ai")
	req.Header.Set("X-Title", "exam-engine")
	// Pin OpenAI-hosted models to first-party providers for stable latency.
	if strings.HasPrefix(model, "openai/") {
		req.Header.Set("OpenRouter-Prefer-Providers", "azure,openai")
	}
	return req, nil
}

func (openrouterFamily) parseResponse(data []byte) (Response, error) {
	var r openrouterResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decoding openrouter response: %w", err)
	}
	if len(r.Choices) == 0 {
		return Response{}, fmt.Errorf("openrouter response has no choices")
	}
	return Response{
		Text: r.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
		},
	}, nil
}

// --- Anthropic Messages API ---

type anthropicFamily struct{}

func (anthropicFamily) name() string       { return "anthropic" }
func (anthropicFamily) defaultURL() string { return "https://api.anthropic.com/v1/messages" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (f anthropicFamily) buildRequest(ctx context.Context, url, apiKey, model string, msgs []Message, opts CallOptions) (*http.Request, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

func (anthropicFamily) parseResponse(data []byte) (Response, error) {
	var r anthropicResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decoding anthropic response: %w", err)
	}
	for _, block := range r.Content {
		if block.Type != "text" {
			continue
		}
		return Response{
			Text: block.Text,
			Usage: Usage{
				InputTokens:  r.Usage.InputTokens,
				OutputTokens: r.Usage.OutputTokens,
			},
		}, nil
	}
	return Response{}, fmt.Errorf("anthropic response has no text content")
}
