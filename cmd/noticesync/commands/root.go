// Package commands holds the noticesync CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/logging"
)

var rootCmd = &cobra.Command{
	Use:           "noticesync",
	Short:         "noticesync logs into the placement portal and forwards new notices downstream.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
