package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/directory"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/services/msgraph"
	"vigil/internal/store"
	"vigil/internal/tracker"
)

func newTrackCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Run today's tracking session",
		Long: "Wait for the scheduled start hour, poll the presence source for the\n" +
			"configured roster until the end hour, and record unavailability\n" +
			"intervals. A stop signal triggers cleanup before exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("initialize logging: %w", err)
				}

				client := msgraph.NewClient(cfg)
				dir := directory.New(st, client, logger)
				notifier := notifications.NewService(cfg)

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				return tracker.New(cfg, st, dir, client, notifier, logger).Run(ctx)
			})
		},
	}
}
