package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/intellidesk/internal/config"
	"github.com/example/intellidesk/internal/logging"
)

type rootOptions struct {
	logFormat string
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdin: stdin, stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:          "intellidesk",
		Short:        "Conversational front desk for meetings, equipment and IT tickets",
		SilenceUsage: true,
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "log output format: json or text")

	cmd.AddCommand(
		newServeCommand(opts),
		newChatCommand(opts),
		newMigrateCommand(opts),
		newRoomsCommand(opts),
		newImportFlowsCommand(opts),
	)
	return cmd
}

// logger builds the process logger writing to w at level.
func (o *rootOptions) logger(w io.Writer, level slog.Level) *slog.Logger {
	return logging.New(w, level, o.logFormat == "text")
}

// loadConfig reads the environment, logging the failure before returning it.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		o.logger(o.stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		return config.Config{}, err
	}
	return cfg, nil
}
