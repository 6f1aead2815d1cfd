package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
	"github.com/use-agent/noticesync/runner"
)

var (
	runCredentials *string
	runWatermark   *string
)

func init() {
	runCredentials = runCmd.Flags().String("credentials", "credentials.json5",
		"json5 file with rollNo, password and securityAnswers; a sibling .local file overrides it")
	runWatermark = runCmd.Flags().String("watermark", "",
		`newest notice timestamp already delivered, "DD-MM-YYYY HH:MM" or RFC 3339`)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--credentials <file>] [--watermark <timestamp>]",
	Short: "Runs one sync in the foreground and prints the delivered notices.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		creds, err := config.ReadFile[models.Credentials](*runCredentials)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("credentials file %s not found", *runCredentials)
		}
		if err != nil {
			return err
		}

		r, err := runner.NewDefault(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Runs.Timeout)
		defer cancel()

		res, err := r.Run(ctx, models.SyncRequest{
			Credentials:       creds,
			LastKnownNoticeAt: *runWatermark,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Notices)
	},
}
