// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/scoresummit/exam-engine/internal/backend"
	"github.com/scoresummit/exam-engine/internal/history"
	"github.com/scoresummit/exam-engine/internal/pipeline"
	"github.com/scoresummit/exam-engine/internal/sandbox"
	"github.com/scoresummit/exam-engine/pkg/types"
)

// loadPipelineConfig reads the pipeline configuration from the config
// file viper located, then fills in defaults for anything unset.
func loadPipelineConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = defaultBackends()
	}
	if len(cfg.Solver.Backends) == 0 {
		for _, b := range cfg.Backends {
			cfg.Solver.Backends = append(cfg.Solver.Backends, b.ID)
		}
	}
	if cfg.Sandbox.URL == "" {
		cfg.Sandbox.URL = loadedSecrets["sandbox-url"]
	}
	return cfg, nil
}

// defaultBackends is the stock pool used when no config file names one.
func defaultBackends() []types.BackendConfig {
	return []types.BackendConfig{
		{ID: "gpt-fast", Family: "openrouter", Model: "openai/gpt-5-mini", MaxTokens: 2000},
		{ID: "gemini-fast", Family: "openrouter", Model: "google/gemini-2.5-flash", MaxTokens: 2000},
		{ID: "claude-primary", Family: "anthropic", Model: "claude-sonnet-4-5", MaxTokens: 4000},
	}
}

// buildPipeline assembles the pipeline and its optional sinks from the
// loaded configuration. The returned closer releases the history store.
func buildPipeline(w io.Writer) (*pipeline.Pipeline, types.PipelineConfig, func(), error) {
	cfg, err := loadPipelineConfig()
	if err != nil {
		return nil, cfg, nil, err
	}

	pool, err := backend.NewPool(cfg.Backends, loadedSecrets, nil)
	if err != nil {
		return nil, cfg, nil, err
	}

	var runner sandbox.Runner
	if r, err := sandbox.NewRunner(cfg.Sandbox, nil); err != nil {
		fmt.Fprintf(os.Stderr, "warning: sandbox unavailable, math cross-checks disabled: %v\n", err)
	} else {
		runner = r
	}

	pl := pipeline.New(pool, runner, cfg, w)

	closer := func() {}
	if cfg.History.Dir != "" {
		store, err := history.NewStore(cfg.History)
		if err != nil {
			return nil, cfg, nil, err
		}
		pl.WithRecorder(store)
		closer = func() { store.Close() }
	}
	return pl, cfg, closer, nil
}
