package cmd

import (
	"github.com/spf13/cobra"
)

var (
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored invoices",
	Long:    `List invoices stored for the configured user, newest first.`,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum invoices to return")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of invoices to skip")
}

func runList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	invoices, err := client.GetInvoices(listLimit, listOffset)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintInvoices(invoices)
}
