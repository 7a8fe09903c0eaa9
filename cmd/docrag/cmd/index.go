package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/engine"
	"github.com/docrag/docrag/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		refresh       bool
		rebuild       bool
		backup        bool
		restoreBackup string
	)

	cmd := &cobra.Command{
		Use:   "index [base-url]",
		Short: "Crawl and index a documentation site",
		Long: `Crawl a documentation site, chunk its pages, and build the
hybrid (BM25 + vector) index used by 'docrag search'.

Running index again resumes from the prior crawl state: it only
fetches URLs that are new, stale, or previously failed. Use --refresh
to force re-fetching every URL, and --rebuild to also force a full
vector index rebuild even if nothing changed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := output.New(cmd.OutOrStdout())

			if restoreBackup != "" {
				target := filepath.Join(configDir, "docrag.yaml")
				if path, ok := existingConfigPath(configDir); ok {
					target = path
				}
				if err := config.RestoreConfigFile(target, restoreBackup); err != nil {
					return fmt.Errorf("failed to restore config: %w", err)
				}
				out.Statusf("", "restored config from %s", restoreBackup)
			}

			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(args) > 0 {
				cfg.Crawl.BaseURL = args[0]
			}

			if backup {
				if path, ok := existingConfigPath(configDir); ok {
					backupPath, err := config.BackupConfigFile(path)
					if err != nil {
						return fmt.Errorf("failed to back up config: %w", err)
					}
					if backupPath != "" {
						out.Statusf("", "backed up config to %s", backupPath)
					}
				}
			}

			idx, err := engine.NewIndexer(ctx, cfg, cacheDir)
			if err != nil {
				return fmt.Errorf("failed to initialize indexer: %w", err)
			}
			defer idx.Close()

			out.Status("", "Running crawl and index cycle...")
			report, err := idx.Orchestrator.Run(ctx, refresh, rebuild)
			if err != nil {
				return fmt.Errorf("indexing run failed: %w", err)
			}
			out.Statusf("", "run %s", report.RunID)

			out.Successf("fetched %d pages (%d from cache, %d failed, %d quarantined)",
				report.Fetched, report.FromCache, report.Failed, report.Quarantined)
			if report.Rebuilt {
				out.Status("", "vector index fully rebuilt")
			} else {
				out.Statusf("", "%d chunks added, %d chunks purged", report.ChunksAdded, report.ChunksPurged)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Force re-fetching every URL regardless of cache freshness")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Force a full vector index rebuild")
	cmd.Flags().BoolVar(&backup, "backup", false, "Back up docrag.yaml before running")
	cmd.Flags().StringVar(&restoreBackup, "restore-config", "", "Restore docrag.yaml from a backup file before running")

	return cmd
}

// existingConfigPath returns the path of whichever config file Load would
// have read from dir, if any.
func existingConfigPath(dir string) (string, bool) {
	for _, name := range []string{"docrag.yaml", "docrag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
