// Package cmd provides the socforge command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the socforge CLI command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "socforge",
		Short: "Security event detection and correlation platform",
		Long: `socforge ingests security telemetry, evaluates detection rules over it,
correlates the resulting alerts into incidents, and serves the results over
an HTTP API with live WebSocket updates.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newRulesCmd())

	return rootCmd
}
