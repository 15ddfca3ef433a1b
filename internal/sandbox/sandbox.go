// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sandbox executes untrusted numeric/symbolic verification code
// and returns a structured result. The primary runner posts code to a
// remote execution service; a container runner provides a local
// fallback. Both are bounded by short timeouts and never allowed to
// block the pipeline beyond them.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// Result is the structured outcome of one code execution. A Result with
// OK=false describes a failed execution, not a failed runner; runners
// return an error only for transport-level problems.
type Result struct {
	OK     bool
	Result string
	Stdout string
	Error  string
}

// Runner executes one snippet of untrusted code.
type Runner interface {
	Run(ctx context.Context, code string) (Result, error)
}

const (
	defaultExecTimeout = 5 * time.Second
	defaultMaxRetries  = 2
)

// backoffBase controls the base duration for retry backoff. Tests
// override this to avoid real sleeps.
var backoffBase = 250 * time.Millisecond

// execRequest is the wire request to the execution service.
type execRequest struct {
	Code string `json:"code"`
}

// execResponse is the wire response. Result may be a number, string, or
// list depending on what the code produced.
type execResponse struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Stdout string `json:"stdout"`
	Error  string `json:"error"`
}

// HTTPRunner posts code to a remote execution service.
type HTTPRunner struct {
	url        string
	timeout    time.Duration
	maxRetries int
	client     *http.Client
}

// NewHTTPRunner builds a runner for the execution service at cfg.URL.
func NewHTTPRunner(cfg types.SandboxConfig, client *http.Client) (*HTTPRunner, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sandbox: http runner requires a url")
	}
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &HTTPRunner{url: cfg.URL, timeout: timeout, maxRetries: maxRetries, client: client}, nil
}

// Run executes code remotely, retrying transient transport failures with
// exponential backoff. Execution errors reported by the service are
// returned as Result{OK: false}, not retried.
func (r *HTTPRunner) Run(ctx context.Context, code string) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		res, err := r.runOnce(ctx, code)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	return Result{}, fmt.Errorf("sandbox: after %d retries: %w", r.maxRetries, lastErr)
}

func (r *HTTPRunner) runOnce(ctx context.Context, code string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(execRequest{Code: code})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling exec request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating exec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling exec service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("exec service returned %d", resp.StatusCode)
	}

	var er execResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return Result{}, fmt.Errorf("decoding exec response: %w", err)
	}
	return er.toResult(), nil
}

func (e execResponse) toResult() Result {
	return Result{
		OK:     e.OK,
		Result: FormatValue(e.Result),
		Stdout: e.Stdout,
		Error:  e.Error,
	}
}

// FormatValue renders an execution result value as a comparable string.
// Numbers drop their trailing zeros so 12.0 and 12 compare equal.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

// NewRunner builds the runner selected by cfg.Mode. Auto prefers the
// remote service and falls back to a local container when no URL is
// configured.
func NewRunner(cfg types.SandboxConfig, client *http.Client) (Runner, error) {
	switch cfg.Mode {
	case types.SandboxHTTP:
		return NewHTTPRunner(cfg, client)
	case types.SandboxContainer:
		return NewContainerRunner(cfg)
	case types.SandboxAuto, "":
		if cfg.URL != "" {
			return NewHTTPRunner(cfg, client)
		}
		return NewContainerRunner(cfg)
	default:
		return nil, fmt.Errorf("sandbox: unknown mode %q", cfg.Mode)
	}
}
