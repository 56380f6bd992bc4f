package main

import (
	"github.com/spf13/cobra"

	"modelardb-sim/internal/dashboard"
	"modelardb-sim/internal/logging"
)

var (
	dashboardCatalog string
	dashboardOut     string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render a Grafana dashboard for a catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(dashboardCatalog)
		if err != nil {
			return err
		}
		if err := dashboard.Render(dashboardOut, reg); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).Info("dashboard rendered", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardCatalog, "catalog", "", "Path to the catalog; empty uses the built-in catalog")
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
