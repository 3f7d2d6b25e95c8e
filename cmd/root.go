package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "billing",
	Short: "Delivery billing service",
	Long:  `Records cooperative bicycle deliveries, freezes monthly periods and produces payor invoices with Swiss QR-bills`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
