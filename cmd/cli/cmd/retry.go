package cmd

import (
	"github.com/spf13/cobra"

	"invoice-tracking/internal/handlers"
)

var retryForce bool

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry previously failed candidates",
	Long:  `Re-run parsing for candidates that failed on earlier processing runs.`,
	RunE:  runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().BoolVar(&retryForce, "force", false, "Bypass the per-user run throttle")
}

func runRetry(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	run, err := client.RetryFailed(&handlers.ProcessRequest{Force: retryForce})
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Retry run completed")
	}

	return formatter.PrintRun(run)
}
