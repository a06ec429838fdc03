package cmd

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <invoice-id>",
	Short: "Get invoice details by ID",
	Long:  `Get detailed information about a specific invoice by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	id, err := validateID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	invoice, err := client.GetInvoice(id)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintInvoice(invoice)
}
