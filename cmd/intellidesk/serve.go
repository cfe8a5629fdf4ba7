package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/example/intellidesk/internal/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background housekeeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.logger(opts.stdout, cfg.LogLevel)

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
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) handler() http.Handler {
	logger := a.logger
	return httptransport.NewRouter(httptransport.RouterConfig{
		Chat:      httptransport.NewChatHandler(a.engine, logger),
		Meetings:  httptransport.NewMeetingHandler(a.meetings, logger),
		Rooms:     httptransport.NewRoomHandler(a.rooms, logger),
		Equipment: httptransport.NewEquipmentHandler(a.equipment, logger),
		Tickets:   httptransport.NewTicketHandler(a.tickets, logger),
		Admin:     httptransport.NewAdminHandler(a.admin, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequirePrincipal(logger),
		},
		ChatMiddleware: []func(http.Handler) http.Handler{
			httptransport.RateLimit(a.cfg.ChatRatePerMinute, logger),
		},
	})
}

// serve restores saved flows, runs the API and the janitor until ctx ends, then
// snapshots the flows still in progress.
func (a *app) serve(ctx context.Context) error {
	if restored, err := a.snapshots.Restore(ctx, a.flows); err != nil {
		a.logger.Warn("failed to restore flow snapshot", "error", err)
	} else if restored > 0 {
		a.logger.Info("flows restored", "flows", restored)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.AdapterTimeout*3 + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("intellidesk API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.janitor.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		a.logger.Error("server encountered error", "error", err)
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, serr := a.snapshots.Save(saveCtx, a.flows); serr != nil {
		a.logger.Error("failed to save flow snapshot", "error", serr)
	}
	return err
}
