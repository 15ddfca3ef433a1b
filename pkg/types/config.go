package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "exam-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// BackendConfig describes one reasoning backend the dispatcher may call.
type BackendConfig struct {
	// ID is the name the pipeline uses to refer to this backend
	// (e.g. "gpt-fast", "claude-primary").
	ID string `json:"id" yaml:"id"`

	// Family selects the request-shaping strategy: "openrouter" or
	// "anthropic".
	Family string `json:"family" yaml:"family"`

	// Model is the provider model identifier (e.g. "openai/gpt-5-mini").
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the family's default endpoint. Used by tests.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DispatchConfig bounds one fan-out over the backend pool.
type DispatchConfig struct {
	// PerCallTimeout bounds each individual backend call.
	PerCallTimeout time.Duration `json:"per_call_timeout" yaml:"per_call_timeout"`

	// TotalTimeout bounds the whole batch and takes precedence over
	// PerCallTimeout: when it elapses the dispatch returns whatever
	// votes exist.
	TotalTimeout time.Duration `json:"total_timeout" yaml:"total_timeout"`

	// EarlyConsensus enables the fast-quorum short circuit.
	EarlyConsensus bool `json:"early_consensus" yaml:"early_consensus"`

	// FastBackends lists the backend IDs forming the early-consensus
	// quorum. The short circuit fires when all of them have answered
	// and agree.
	FastBackends []string `json:"fast_backends" yaml:"fast_backends"`
}

// ClassifyConfig holds settings for the classification stage.
type ClassifyConfig struct {
	// Backend is the ID of the backend used for classification. Empty
	// means heuristic-only classification.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Timeout bounds the classification call (default 4s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SolverConfig holds settings for the solving stage.
type SolverConfig struct {
	// Backends lists the IDs dispatched for every question.
	Backends []string `json:"backends" yaml:"backends"`

	// TiebreakBackend casts a deciding vote for math questions when the
	// primary backends produce no majority.
	TiebreakBackend string `json:"tiebreak_backend,omitempty" yaml:"tiebreak_backend,omitempty"`

	// EscalationBackend is the stronger, slower backend used for the
	// single escalation attempt.
	EscalationBackend string `json:"escalation_backend,omitempty" yaml:"escalation_backend,omitempty"`

	// EscalationThreshold triggers escalation when the chosen vote's
	// confidence falls below it (default 0.72).
	EscalationThreshold float64 `json:"escalation_threshold" yaml:"escalation_threshold"`

	// EscalationTimeout bounds the escalation call (default 45s).
	EscalationTimeout time.Duration `json:"escalation_timeout" yaml:"escalation_timeout"`

	// MatchBoost is added to a math vote's confidence when sandbox
	// execution confirms its answer (default 0.15, capped at MatchCap).
	MatchBoost float64 `json:"match_boost" yaml:"match_boost"`

	// MatchCap caps boosted confidence (default 0.98).
	MatchCap float64 `json:"match_cap" yaml:"match_cap"`

	// MismatchPenalty multiplies a math vote's confidence when the
	// sandbox result disagrees (default 0.75).
	MismatchPenalty float64 `json:"mismatch_penalty" yaml:"mismatch_penalty"`

	// OverrideThreshold is the confidence below which a disagreeing
	// sandbox result replaces the model answer (default 0.5).
	OverrideThreshold float64 `json:"override_threshold" yaml:"override_threshold"`
}

// VerifyConfig holds settings for the verification stage.
type VerifyConfig struct {
	// RescoreBackends lists one or two backend IDs that independently
	// re-score reading/writing answer choices.
	RescoreBackends []string `json:"rescore_backends" yaml:"rescore_backends"`

	// SubCheckTimeout bounds each verification sub-check (default 10s).
	// A sub-check that cannot finish in time counts as failed.
	SubCheckTimeout time.Duration `json:"sub_check_timeout" yaml:"sub_check_timeout"`

	// MinRescore is the minimum independent score the chosen answer must
	// reach for the re-score check to pass (default 0.5).
	MinRescore float64 `json:"min_rescore" yaml:"min_rescore"`

	// DisagreementGap is the score gap above which the two re-scoring
	// backends are considered to strongly disagree (default 0.4).
	DisagreementGap float64 `json:"disagreement_gap" yaml:"disagreement_gap"`
}

// SandboxMode selects how untrusted verification code is executed.
type SandboxMode string

const (
	// SandboxHTTP posts code to a remote execution service.
	SandboxHTTP SandboxMode = "http"
	// SandboxContainer pipes code into a local docker/podman container.
	SandboxContainer SandboxMode = "container"
	// SandboxAuto prefers the HTTP service and falls back to a container.
	SandboxAuto SandboxMode = "auto"
)

// SandboxConfig holds settings for the code-execution sandbox.
type SandboxConfig struct {
	HTTPConfig `yaml:",inline"`

	// Mode selects the runner: http, container, or auto.
	Mode SandboxMode `json:"mode" yaml:"mode"`

	// URL is the remote execution endpoint for the http runner.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Image is the sandbox container image for the container runner.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// MaxRetries bounds retries on transient execution failures
	// (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// AggregateConfig holds the confidence-composition constants. The values
// are tunable; only their relative ordering matters to callers.
type AggregateConfig struct {
	// VerifiedFloor and VerifiedWeight rescale confidence upward after a
	// passed verification: min(1, VerifiedFloor + VerifiedWeight*conf).
	VerifiedFloor  float64 `json:"verified_floor" yaml:"verified_floor"`
	VerifiedWeight float64 `json:"verified_weight" yaml:"verified_weight"`

	// FailPenalty multiplies confidence when verification failed and no
	// escalation was possible (default 0.7).
	FailPenalty float64 `json:"fail_penalty" yaml:"fail_penalty"`

	// DisagreePenalty multiplies confidence when an escalation vote
	// contradicts the original answer (default 0.85).
	DisagreePenalty float64 `json:"disagree_penalty" yaml:"disagree_penalty"`

	// MinConfidence and MaxConfidence clamp the final value. The system
	// never reports zero or full certainty (defaults 0.1 and 1.0).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence"`
}

// HistoryConfig holds settings for the resolution history store.
type HistoryConfig struct {
	// Dir is the directory holding the SQLite database. Empty disables
	// history recording.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// PipelineConfig groups all stage configurations for one pipeline.
type PipelineConfig struct {
	Backends  []BackendConfig `json:"backends" yaml:"backends"`
	Classify  ClassifyConfig  `json:"classify" yaml:"classify"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Solver    SolverConfig    `json:"solver" yaml:"solver"`
	Verify    VerifyConfig    `json:"verify" yaml:"verify"`
	Sandbox   SandboxConfig   `json:"sandbox" yaml:"sandbox"`
	Aggregate AggregateConfig `json:"aggregate" yaml:"aggregate"`
	History   HistoryConfig   `json:"history" yaml:"history"`

	// TotalBudget bounds one whole resolution including escalation
	// (default 90s).
	TotalBudget time.Duration `json:"total_budget" yaml:"total_budget"`
}
