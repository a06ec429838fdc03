package cmd

import (
	"github.com/spf13/cobra"
)

var statsRefresh bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show invoice statistics and warranty alerts",
	Long: `Show aggregate statistics for the configured user's invoices, including
spending totals, counts by document type, and upcoming warranty expirations.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsRefresh, "refresh", false, "Bypass the cached snapshot and recompute")
}

func runStats(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	stats, err := client.GetStats(statsRefresh)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintStats(stats)
}
