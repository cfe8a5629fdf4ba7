package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/intellidesk/internal/config"
	"github.com/example/intellidesk/internal/persistence/sqlite"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		dsn    string
		status bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(opts.stderr, slog.LevelInfo)

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

			if !status {
				if err := storage.Migrate(cmd.Context(), logger); err != nil {
					logger.Error("failed to apply migrations", "error", err)
					return err
				}
			}

			st, err := storage.MigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema version %d, %d pending\n", st.CurrentVersion, len(st.Pending))
			for _, m := range st.Applied {
				fmt.Fprintf(out, "  applied %03d %s (took %s)\n", m.Version, humanize.Time(m.AppliedAt), m.ExecutionTime)
			}
			for _, m := range st.Pending {
				fmt.Fprintf(out, "  pending %03d %s\n", m.Version, m.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", envOr("SQLITE_DSN", config.Defaults().SQLiteDSN), "SQLite database path")
	cmd.Flags().BoolVar(&status, "status", false, "report migration status without applying")
	return cmd
}

// envOr returns the INTELLIDESK_ variable name or fallback when unset.
func envOr(name, fallback string) string {
	if v := os.Getenv(config.Prefix + name); v != "" {
		return v
	}
	return fallback
}
