package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/messis/internal/app"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Phase 1: enumerate catalog identifiers across the search space",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := app.New(config, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		summary, err := application.DiscoveryService.Run(ctx)
		if summary != nil {
			logger.Info().
				Str("run_id", summary.RunID).
				Int("discovered", summary.Discovered).
				Int("units_done", summary.UnitsDone).
				Int("units_failed", summary.UnitsFailed).
				Dur("duration", summary.Duration).
				Msg("Discovery summary")
		}
		return err
	},
}
