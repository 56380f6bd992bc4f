package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"modelardb-sim/internal/config"
	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/registry"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:          "modelardb-sim",
	Short:        "ModelarDB dashboard simulation backend",
	Long:         "modelardb-sim drives ingestion, flushing, and object-store monitoring for a ModelarDB comparison dashboard.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.NewWithOptions(os.Stderr, logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadRegistry reads the catalog at path, or the embedded default when path
// is empty.
func loadRegistry(path string) (*registry.Registry, error) {
	var (
		cat *config.Catalog
		err error
	)
	if path == "" {
		cat, err = config.Default()
	} else {
		cat, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	return cat.Registry()
}
