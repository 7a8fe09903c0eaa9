// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	docerrors "github.com/docrag/docrag/internal/errors"
	"github.com/docrag/docrag/internal/logging"
	"github.com/docrag/docrag/pkg/version"
)

var (
	cacheDir  string
	configDir string
	debugMode bool

	// jsonMode is set by search/info's --json flag. When set, logging must
	// never write to stdout/stderr: it would corrupt the JSON a caller is
	// piping into another tool.
	jsonMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Crawl, index, and search a documentation site",
		Long: `docrag crawls a documentation site, chunks and embeds its pages,
and answers search queries over the resulting hybrid (BM25 + vector)
index.

Run 'docrag index <base-url>' to build an index, then 'docrag search
<query>' to query it.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: startLogging,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			stopLogging()
			return nil
		},
	}
	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", ".docrag", "Directory holding the crawl state, chunk store, and indexes")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory to look for docrag.yaml in")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docrag/logs/")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if jsonMode {
		cleanup, err := logging.SetupJSONMode()
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		return nil
	}
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command, printing any returned error in the same
// code/suggestion format used for structured DocErrors.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, docerrors.FormatForCLI(err))
	}
	return err
}
