// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoresummit/exam-engine/pkg/types"
)

func TestHTTPAdapter_OpenRouterCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "azure,openai", r.Header.Get("OpenRouter-Prefer-Providers"))

		var req openrouterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-5-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"answer":"B"}`}},
			},
			"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 30},
		})
	}))
	defer ts.Close()

	a, err := New(types.BackendConfig{
		ID:      "gpt-fast",
		Family:  "openrouter",
		Model:   "openai/gpt-5-mini",
		BaseURL: ts.URL,
	}, "test-key", ts.Client())
	require.NoError(t, err)

	resp, err := a.Call(context.Background(), []Message{{Role: "user", Content: "solve"}}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"B"}`, resp.Text)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 30, resp.Usage.OutputTokens)
}

func TestHTTPAdapter_AnthropicCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": "..."},
				{"type": "text", "text": "final answer"},
			},
			"usage": map[string]int{"input_tokens": 80, "output_tokens": 12},
		})
	}))
	defer ts.Close()

	a, err := New(types.BackendConfig{
		ID:      "claude-escalation",
		Family:  "anthropic",
		Model:   "claude-sonnet-4-5",
		BaseURL: ts.URL,
	}, "test-key", ts.Client())
	require.NoError(t, err)

	resp, err := a.Call(context.Background(), []Message{{Role: "user", Content: "solve"}}, CallOptions{MaxTokens: 2048})
	require.NoError(t, err)
	assert.Equal(t, "final answer", resp.Text)
	assert.Equal(t, 80, resp.Usage.InputTokens)
}

func TestHTTPAdapter_TimeoutSurfacesError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a, err := New(types.BackendConfig{
		ID: "slow", Family: "openrouter", Model: "m", BaseURL: ts.URL,
	}, "k", ts.Client())
	require.NoError(t, err)

	_, err = a.Call(context.Background(), nil, CallOptions{Timeout: 20 * time.Millisecond})
	assert.Error(t, err)
}

func TestHTTPAdapter_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "key invalid", http.StatusUnauthorized)
	}))
	defer ts.Close()

	a, err := New(types.BackendConfig{
		ID: "b", Family: "openrouter", Model: "m", BaseURL: ts.URL,
	}, "k", ts.Client())
	require.NoError(t, err)

	_, err = a.Call(context.Background(), nil, CallOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNew_UnknownFamily(t *testing.T) {
	_, err := New(types.BackendConfig{ID: "x", Family: "mystery"}, "", nil)
	assert.Error(t, err)
}

func TestNewPool(t *testing.T) {
	pool, err := NewPool([]types.BackendConfig{
		{ID: "a", Family: "openrouter", Model: "m1"},
		{ID: "b", Family: "anthropic", Model: "m2"},
	}, map[string]string{"openrouter-api-key": "k1", "anthropic-api-key": "k2"}, nil)
	require.NoError(t, err)

	adapters, err := pool.Pick([]string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, adapters, 2)

	_, err = pool.Pick([]string{"a", "missing"})
	assert.Error(t, err)
}

func TestNewPool_DuplicateID(t *testing.T) {
	_, err := NewPool([]types.BackendConfig{
		{ID: "a", Family: "openrouter"},
		{ID: "a", Family: "anthropic"},
	}, nil, nil)
	assert.Error(t, err)
}
