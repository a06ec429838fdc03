package cmd

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <invoice-id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete an invoice",
	Long:    `Delete an invoice from the tracking system.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	id, err := validateID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if err := client.DeleteInvoice(id); err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Invoice deleted successfully")
	}

	return nil
}
