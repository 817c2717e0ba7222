package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/messis/internal/common"
)

var (
	// Command-line flags
	configFiles []string

	// Global state, populated before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "messis",
	Short:         "Two-phase harvest pipeline for server-stateful web catalogs",
	Long:          "Messis discovers catalog identifiers by traversing paginated search results,\nthen harvests each record's detail page into a tabular output file.\nBoth phases checkpoint their progress and resume where they left off.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup runs the startup sequence: load config, initialize the logger,
// print the banner.
func setup() error {
	// Auto-discover a config file next to the working directory
	if len(configFiles) == 0 {
		if _, err := os.Stat("messis.toml"); err == nil {
			configFiles = append(configFiles, "messis.toml")
		} else if _, err := os.Stat("deployments/local/messis.toml"); err == nil {
			// Fallback for users running from the project root
			configFiles = append(configFiles, "deployments/local/messis.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.LoadVersionFromFile())

	logger.Debug().
		Str("base_url", config.Catalog.BaseURL).
		Str("badger_path", config.Storage.Badger.Path).
		Str("output_path", config.Storage.Output.Path).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")

	return nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM so an
// interrupted run checkpoints cleanly instead of dying mid-write.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}
