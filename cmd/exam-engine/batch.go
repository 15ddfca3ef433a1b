// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/scoresummit/exam-engine/internal/metrics"
	"github.com/scoresummit/exam-engine/internal/solve"
	"github.com/scoresummit/exam-engine/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Resolve a file of exam questions concurrently",
	Long: `Batch reads a YAML or JSON list of questions and resolves them with a
bounded worker pool. Questions carrying an expected answer are graded
and contribute to the accuracy figure in the run summary.

Every question yields a result; backend failures degrade individual
answers instead of aborting the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	questions, err := readBatchFile(args[0])
	if err != nil {
		return err
	}

	pl, _, closer, err := buildPipeline(os.Stderr)
	if err != nil {
		return err
	}
	defer closer()

	registry := metrics.NewRegistry()
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = 4
	}

	results := make([]types.ResolvedAnswer, len(questions))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)
	for i, fq := range questions {
		i, fq := i, fq
		g.Go(func() error {
			res := pl.Resolve(ctx, fq.toQuestion())
			mu.Lock()
			results[i] = res
			if fq.Expected != "" {
				registry.RecordGraded(res, solve.Equivalent(res.Answer, fq.Expected))
			} else {
				registry.Record(res)
			}
			mu.Unlock()
			fmt.Fprintf(os.Stderr, "resolved %s: %s (%.2f)\n", res.QuestionID, res.Answer, res.Confidence)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeBatchResults(cmd, results); err != nil {
		return err
	}
	printSummary(registry.Snapshot())
	return nil
}

func readBatchFile(path string) ([]fileQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var questions []fileQuestion
	if err := unmarshalByExt(path, data, &questions); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("batch file %s contains no questions", path)
	}
	for i, q := range questions {
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %d in %s has no prompt", i+1, path)
		}
	}
	return questions, nil
}

// unmarshalByExt decodes data as JSON or YAML based on the file extension.
func unmarshalByExt(path string, data []byte, v any) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

func writeBatchResults(cmd *cobra.Command, results []types.ResolvedAnswer) error {
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(out), ".json") {
		data, err = json.MarshalIndent(results, "", "  ")
	} else {
		data, err = yaml.Marshal(results)
	}
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d results to %s\n", len(results), out)
	return nil
}

func printSummary(s metrics.Snapshot) {
	fmt.Fprintf(os.Stderr, "\nresolved: %d, avg latency: %s, p95 latency: %s, escalation rate: %.0f%%\n",
		s.Count, s.AvgLatency.Round(time.Millisecond), s.P95Latency.Round(time.Millisecond),
		s.EscalationRate*100)
	if s.Graded > 0 {
		fmt.Fprintf(os.Stderr, "graded: %d, accuracy: %.1f%%\n", s.Graded, s.Accuracy*100)
	}
}

func init() {
	batchCmd.Flags().Int("workers", 4, "maximum questions resolved concurrently")
	batchCmd.Flags().String("output", "", "write results to this file (YAML or JSON by extension) instead of stdout")

	rootCmd.AddCommand(batchCmd)
}
