// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scoresummit/exam-engine/internal/history"
	"github.com/scoresummit/exam-engine/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past resolutions (list, search, export)",
	Long: `History queries the local SQLite store of past resolutions. Use list
for recent resolutions, search for FTS5 full-text search over prompts,
and export to dump matching entries as YAML or JSON.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent resolutions, newest first",
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(context.Background(), historyOptsFromFlags(cmd, nil))
	if err != nil {
		return err
	}
	return formatHistoryOutput(cmd, entries)
}

// --- search subcommand ---

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over past question prompts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistorySearch,
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(context.Background(), historyOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	return formatHistoryOutput(cmd, entries)
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export matching resolutions as YAML or JSON",
	RunE:  runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := historyOptsFromFlags(cmd, args)
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "yaml", "":
		return store.ExportYAML(context.Background(), os.Stdout, opts)
	case "json":
		return store.ExportJSON(context.Background(), os.Stdout, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

// --- shared helpers ---

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	dir, _ := cmd.Flags().GetString("history-dir")
	if dir == "" {
		cfg, err := loadPipelineConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.History.Dir
	}
	if dir == "" {
		return nil, fmt.Errorf("no history directory: set history.dir in the config or pass --history-dir")
	}
	return history.NewStore(types.HistoryConfig{Dir: dir})
}

func historyOptsFromFlags(cmd *cobra.Command, args []string) history.QueryOptions {
	section, _ := cmd.Flags().GetString("section")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := history.QueryOptions{
		Query:      strings.Join(args, " "),
		Section:    types.Section(section),
		MaxResults: limit,
	}
	if cmd.Flags().Changed("escalated") {
		escalated, _ := cmd.Flags().GetBool("escalated")
		opts.Escalated = &escalated
	}
	return opts
}

func formatHistoryOutput(cmd *cobra.Command, entries []history.Entry) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No resolutions found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-50s  %-8s  %-5s  %s\n",
		"When", "Prompt", "Answer", "Conf", "Section")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for _, e := range entries {
		prompt := e.Prompt
		if len(prompt) > 50 {
			prompt = prompt[:47] + "..."
		}
		answer := e.Answer
		if len(answer) > 8 {
			answer = answer[:5] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-50s  %-8s  %.2f  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), prompt, answer, e.Confidence, e.Section)
	}

	fmt.Fprintf(os.Stdout, "\n%d resolutions\n", len(entries))
	return nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	historyCmd.PersistentFlags().String("history-dir", "", "history directory (default: history.dir from the config)")
	historyCmd.PersistentFlags().String("section", "", "filter by section: math or reading_writing")
	historyCmd.PersistentFlags().Bool("escalated", false, "filter by whether escalation ran")
	historyCmd.PersistentFlags().Int("limit", 0, "maximum results (0 = use default)")
	historyCmd.PersistentFlags().Bool("json", false, "output results as JSON")

	// Export flags.
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(historyCmd)
}
