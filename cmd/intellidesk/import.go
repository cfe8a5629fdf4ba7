package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/intellidesk/internal/config"
	"github.com/example/intellidesk/internal/housekeeping"
	"github.com/example/intellidesk/internal/persistence/sqlite"
)

func newImportFlowsCommand(opts *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "import-flows FILE",
		Short: "Load a flows.json dump so the next serve resumes those conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(opts.stderr, slog.LevelInfo)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			storage, err := sqlite.Open(sqlite.DefaultConfig(dsn))
			if err != nil {
				logger.Error("failed to open storage", "error", err)
				return err
			}
			defer func() {
				if cerr := storage.Close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()
			if err := storage.Migrate(cmd.Context(), logger); err != nil {
				logger.Error("failed to apply migrations", "error", err)
				return err
			}

			n, err := housekeeping.NewSnapshots(storage, logger).ImportJSON(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d flows\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", envOr("SQLITE_DSN", config.Defaults().SQLiteDSN), "SQLite database path")
	return cmd
}
