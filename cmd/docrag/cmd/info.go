package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/engine"
)

func newInfoCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show index statistics, or run a full consistency check with --check",
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				return runInfoCheck(cmd, jsonMode)
			}
			return runInfoStats(cmd, jsonMode)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Run a full consistency check between the chunk store, lexical index, and vector index")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Output as JSON (also routes logging to file only)")

	return cmd
}

func runInfoStats(cmd *cobra.Command, jsonOutput bool) error {
	stats, err := engine.LoadStats(cacheDir)
	if err != nil {
		return fmt.Errorf("failed to load index stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stats)
	}

	fmt.Fprintf(out, "Chunks:          %d\n", stats.ChunkCount)
	fmt.Fprintf(out, "Vectors:         %d\n", stats.VectorCount)
	fmt.Fprintf(out, "Embedding model: %s\n", stats.Metadata.EmbeddingModel)
	fmt.Fprintf(out, "Last update:     %s\n", stats.Metadata.LastUpdate)
	if stats.ChunkCount != stats.VectorCount {
		fmt.Fprintln(out, "\nchunk count and vector count disagree; run 'docrag info --check' for details")
	}
	return nil
}

func runInfoCheck(cmd *cobra.Command, jsonOutput bool) error {
	result, err := engine.RunCheck(cacheDir)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if len(result.Issues) == 0 {
		fmt.Fprintf(out, "OK: %d chunks checked, all consistent (%s)\n", result.Checked, result.Duration)
		return nil
	}

	fmt.Fprintf(out, "Found %d issue(s) across %d chunks checked:\n", len(result.Issues), result.Checked)
	for _, issue := range result.Issues {
		fmt.Fprintf(out, "  [%s] %s: %s\n", issue.Type, issue.ChunkID, issue.Details)
	}
	return nil
}
