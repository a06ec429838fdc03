package cmd

import (
	"github.com/spf13/cobra"

	"invoice-tracking/internal/handlers"
)

var (
	processDays       int
	processMaxResults int64
	processSkip       bool
	processStorePDF   bool
	processForce      bool
	processWorkers    int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Trigger a mailbox processing run",
	Long: `Scan the configured mailbox for invoice and receipt emails, parse them,
and store the extracted invoices. Prints a summary of the run.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntVar(&processDays, "days", 0, "Scan emails from the last N days (0 uses the server default)")
	processCmd.Flags().Int64Var(&processMaxResults, "max-results", 0, "Maximum emails per scan (0 uses the server default)")
	processCmd.Flags().BoolVar(&processSkip, "skip-existing", true, "Skip invoices that are already stored")
	processCmd.Flags().BoolVar(&processStorePDF, "store-pdf", false, "Store raw PDF bytes alongside parsed invoices")
	processCmd.Flags().BoolVar(&processForce, "force", false, "Bypass the per-user run throttle")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "Parallel parse workers (0 uses the server default)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	req := &handlers.ProcessRequest{
		Days:        processDays,
		MaxResults:  processMaxResults,
		StoreRawPDF: processStorePDF,
		Workers:     processWorkers,
		Force:       processForce,
	}
	// Only override the server default when the flag was given
	if cmd.Flags().Changed("skip-existing") {
		req.SkipExisting = &processSkip
	}

	run, err := client.ProcessInvoices(req)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Processing run completed")
	}

	return formatter.PrintRun(run)
}
