package cmd

import (
	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List failed candidates awaiting retry",
	Long:  `List candidates that failed parsing or storage on previous processing runs.`,
	RunE:  runFailures,
}

func init() {
	rootCmd.AddCommand(failuresCmd)
}

func runFailures(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	failures, err := client.GetFailures()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintFailures(failures)
}
