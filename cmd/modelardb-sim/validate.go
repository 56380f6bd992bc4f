package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCatalog string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a catalog file",
	Long:  "validate runs the schema and cross-field checks on a catalog and lists its tables and nodes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(validateCatalog)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range reg.Tables() {
			fmt.Fprintf(out, "table %-10s error_bound=%-8s bytes_per_row=%d\n", t.Name, t.ErrorBound, t.BytesPerRow())
		}
		for _, n := range reg.Nodes() {
			fmt.Fprintf(out, "node  %s\n", n)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateCatalog, "catalog", "", "Path to the catalog; empty checks the built-in catalog")
}
