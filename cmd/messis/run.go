package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/messis/internal/app"
	"github.com/ternarybob/messis/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run both phases: discovery, then harvest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := app.New(config, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		discovery, err := application.DiscoveryService.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info().
			Int("discovered", discovery.Discovered).
			Int("units_failed", discovery.UnitsFailed).
			Msg("Discovery phase finished, starting harvest")

		summary, err := application.HarvestService.Run(ctx)
		if summary != nil {
			logHarvestSummary(summary)
		}
		return err
	},
}

func logHarvestSummary(summary *models.HarvestSummary) {
	event := logger.Info().
		Str("run_id", summary.RunID).
		Int("discovered", summary.Discovered).
		Int("already_done", summary.AlreadyDone).
		Int("harvested", summary.Harvested).
		Int("unharvestable", len(summary.Unharvestable)).
		Dur("duration", summary.Duration)
	event.Msg("Harvest summary")

	for _, id := range summary.Unharvestable {
		logger.Warn().Str("identifier", string(id)).Msg("Identifier left unharvested")
	}
}
