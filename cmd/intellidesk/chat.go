package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/conversation"
)

type chatEngine interface {
	Handle(ctx context.Context, msg conversation.Message) (conversation.Reply, error)
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: "chat reads one message per line from standard input and prints the assistant's replies.\n" +
			"Type /quit to leave. Logs go to standard error at warning level and above.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedRole, ok := application.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if level < slog.LevelWarn {
				level = slog.LevelWarn
			}
			logger := opts.logger(opts.stderr, level)

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to start", "error", err)
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					logger.Error("failed to release resources", "error", cerr)
				}
			}()

			principal := application.Principal{UserID: strings.TrimSpace(userID), Role: parsedRole}
			return runConsole(cmd.Context(), a.engine, principal, opts.stdin, opts.stdout, isTerminal(opts.stdin))
		},
	}
	cmd.Flags().StringVar(&userID, "user", os.Getenv("USER"), "user id to chat as")
	cmd.Flags().StringVar(&role, "role", "user", "role: user, admin or superuser")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runConsole feeds each input line to engine until EOF, /quit or ctx ends. A
// prompt is printed only when interactive.
func runConsole(ctx context.Context, engine chatEngine, principal application.Principal, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	if interactive {
		fmt.Fprintf(out, "Signed in as %s. Type /quit to leave.\n", principal.UserID)
	}
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := engine.Handle(ctx, conversation.Message{Principal: principal, Text: line})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply.Text)
		for i, c := range reply.Candidates {
			fmt.Fprintf(out, "  %d. %s\n", i+1, c)
		}
	}
}
