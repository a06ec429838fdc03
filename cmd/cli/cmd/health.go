package cmd

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API server health",
	Long:  `Check connectivity and component status of the invoice tracking API server.`,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	health, err := client.HealthCheck()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintHealth(health)
}
