// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoresummit/exam-engine/pkg/types"
)

var solveCmd = &cobra.Command{
	Use:   "solve [prompt]",
	Short: "Resolve a single exam question",
	Long: `Solve runs one question through the full resolution pipeline: it is
classified, dispatched to the configured backends, verified, escalated
to a stronger backend when the answer looks weak, and returned with a
calibrated confidence.

The question comes from the arguments or from --file (YAML or JSON with
prompt, choices, and optional id).`,
	RunE: runSolve,
}

// fileQuestion is the on-disk question shape accepted by solve and batch.
type fileQuestion struct {
	ID        string   `json:"id" yaml:"id"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	Choices   []string `json:"choices" yaml:"choices"`
	FigureRef string   `json:"figure_ref" yaml:"figure_ref"`

	// Expected is the known correct answer, used by batch for grading.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

func (f fileQuestion) toQuestion() types.Question {
	return types.Question{
		ID:        f.ID,
		Prompt:    f.Prompt,
		Choices:   f.Choices,
		FigureRef: f.FigureRef,
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	q, err := questionFromInput(cmd, args)
	if err != nil {
		return err
	}

	pl, _, closer, err := buildPipeline(os.Stderr)
	if err != nil {
		return err
	}
	defer closer()

	res := pl.Resolve(context.Background(), q)

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	printResolved(res)
	return nil
}

func questionFromInput(cmd *cobra.Command, args []string) (types.Question, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		fq, err := readQuestionFile(file)
		if err != nil {
			return types.Question{}, err
		}
		return fq.toQuestion(), nil
	}

	if len(args) == 0 {
		return types.Question{}, fmt.Errorf("question required: pass the prompt as arguments or use --file")
	}

	choicesFlag, _ := cmd.Flags().GetStringSlice("choice")
	return types.Question{
		Prompt:  strings.Join(args, " "),
		Choices: choicesFlag,
	}, nil
}

func readQuestionFile(path string) (fileQuestion, error) {
	var fq fileQuestion
	data, err := os.ReadFile(path)
	if err != nil {
		return fq, fmt.Errorf("reading question file: %w", err)
	}
	if err := unmarshalByExt(path, data, &fq); err != nil {
		return fq, fmt.Errorf("parsing question file %s: %w", path, err)
	}
	if fq.Prompt == "" {
		return fq, fmt.Errorf("question file %s has no prompt", path)
	}
	return fq, nil
}

func printResolved(res types.ResolvedAnswer) {
	fmt.Printf("answer:     %s\n", res.Answer)
	fmt.Printf("confidence: %.2f\n", res.Confidence)
	fmt.Printf("section:    %s/%s\n", res.Section, res.Subdomain)
	fmt.Printf("elapsed:    %s\n", res.Elapsed.Round(10*time.Millisecond))
	if res.Escalated {
		fmt.Println("escalated:  yes")
	}
	if res.Verification.Passed {
		fmt.Printf("verified:   yes (%d checks)\n", len(res.Verification.Checks))
	} else if len(res.Verification.Checks) > 0 {
		fmt.Printf("verified:   no (score %.2f)\n", res.Verification.Score)
	}
	for _, e := range res.Evidence {
		fmt.Printf("evidence:   %s\n", e)
	}
	if res.Explanation != "" {
		fmt.Printf("detail:     %s\n", res.Explanation)
	}
}

func init() {
	solveCmd.Flags().String("file", "", "question file (YAML or JSON)")
	solveCmd.Flags().StringSlice("choice", nil, "answer choice, repeatable in order (A, B, ...)")
	solveCmd.Flags().Bool("json", false, "output the full resolution as JSON")

	rootCmd.AddCommand(solveCmd)
}
