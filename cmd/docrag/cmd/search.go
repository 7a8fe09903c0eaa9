package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/engine"
	"github.com/docrag/docrag/internal/query"
)

func newSearchCmd() *cobra.Command {
	var (
		topK     int
		noParent bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a previously built index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")

			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			searcher, err := engine.NewSearcher(ctx, cfg, cacheDir)
			if err != nil {
				return fmt.Errorf("failed to initialize searcher: %w", err)
			}
			defer searcher.Close()

			results, err := searcher.Search.Search(ctx, q, topK, !noParent)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if jsonMode {
				return printSearchResultsJSON(cmd, results)
			}
			return printSearchResultsText(cmd, results)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results to return (0 uses the configured default)")
	cmd.Flags().BoolVar(&noParent, "no-parent", false, "Omit parent chunk context from results")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Output results as JSON (also routes logging to file only)")

	return cmd
}

func printSearchResultsJSON(cmd *cobra.Command, results []query.Result) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func printSearchResultsText(cmd *cobra.Command, results []query.Result) error {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "No results.")
		return err
	}

	for i, r := range results {
		fmt.Fprintf(out, "%d. %s  (score %.4f)\n", i+1, r.URL, r.Score)
		if len(r.HeadingPath) > 0 {
			fmt.Fprintf(out, "   %s\n", strings.Join(r.HeadingPath, " > "))
		}
		fmt.Fprintf(out, "   %s\n", truncateLine(r.Text, 200))
		if r.ParentText != "" {
			fmt.Fprintf(out, "   context: %s\n", truncateLine(r.ParentText, 200))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
