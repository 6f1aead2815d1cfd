package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/noticesync/api"
	"github.com/use-agent/noticesync/api/middleware"
	"github.com/use-agent/noticesync/runner"
	"github.com/use-agent/noticesync/runstore"
)

// drainTimeout bounds how long shutdown waits for in-flight runs.
const drainTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the sync API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.ValidateEndpoints(); err != nil {
			// Runs fail individually until this is fixed; the server still starts.
			logger.Warn("endpoints not configured", "error", err)
		}
		logger.Info("noticesync starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"max_runs", cfg.Runs.MaxConcurrent,
		)

		r, err := runner.NewDefault(cfg, logger)
		if err != nil {
			return err
		}

		store := runstore.New(cfg.Runs.MaxEntries, cfg.Runs.TTL)
		defer store.Close()
		manager := runner.NewManager(r, store, cfg.Runs, cfg.Portal.Location(), logger)

		limiter := middleware.NewLimiter(cfg.RateLimit)
		stopSweep := make(chan struct{})
		defer close(stopSweep)
		go limiter.Run(stopSweep)

		router := api.NewRouter(manager, limiter, cfg, time.Now())
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-cmd.Context().Done():
			logger.Info("shutdown signal received")
		}

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server forced shutdown", "error", err)
		}
		if err := manager.Shutdown(ctx); err != nil {
			logger.Warn("in-flight runs cancelled", "error", err)
		}
		slog.Info("noticesync stopped")
		return nil
	},
}
