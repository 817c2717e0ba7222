package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/messis/internal/app"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Phase 2: fetch detail records for every discovered identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := app.New(config, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		summary, err := application.HarvestService.Run(ctx)
		if summary != nil {
			logHarvestSummary(summary)
		}
		return err
	},
}
