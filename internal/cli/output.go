package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"invoice-tracking/internal/database"
	"invoice-tracking/internal/handlers"
	"invoice-tracking/internal/pipeline"
	"invoice-tracking/internal/stats"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format string
	quiet  bool
	color  bool

	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	warnStyle    lipgloss.Style
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(format string, quiet bool) *OutputFormatter {
	return NewOutputFormatterWithColor(format, quiet, false)
}

// NewOutputFormatterWithColor creates a formatter with explicit color control
func NewOutputFormatterWithColor(format string, quiet, noColor bool) *OutputFormatter {
	color := !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())

	return &OutputFormatter{
		format:       format,
		quiet:        quiet,
		color:        color,
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (f *OutputFormatter) render(style lipgloss.Style, s string) string {
	if !f.color {
		return s
	}
	return style.Render(s)
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Printf("%s %s\n", f.render(f.successStyle, "✓"), message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(os.Stderr, "%s Error: %v\n", f.render(f.errorStyle, "✗"), err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Printf("%s %s\n", f.render(f.infoStyle, "ℹ"), message)
	}
}

// PrintInvoices prints a paginated invoice listing
func (f *OutputFormatter) PrintInvoices(response *handlers.InvoiceListResponse) error {
	if f.quiet {
		for _, invoice := range response.Invoices {
			fmt.Println(invoice.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(response)
	case "table":
		return f.printInvoicesTable(response)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintInvoice prints a single invoice
func (f *OutputFormatter) PrintInvoice(invoice *database.Invoice) error {
	if f.quiet {
		fmt.Println(invoice.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(invoice)
	case "table":
		return f.printInvoiceTable(invoice)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRun prints a pipeline run summary
func (f *OutputFormatter) PrintRun(run *pipeline.Run) error {
	if f.quiet {
		fmt.Printf("%d %d %d %d\n", run.Inserted, run.Skipped, run.Updated, len(run.Failed))
		return nil
	}

	if f.format == "json" {
		return json.NewEncoder(os.Stdout).Encode(run)
	}

	fmt.Printf("Messages scanned: %d\n", run.MessagesScanned)
	fmt.Printf("Skipped irrelevant: %d\n", run.SkippedIrrelevant)
	fmt.Printf("Candidates seen: %d\n", run.CandidatesSeen)
	fmt.Printf("Inserted: %d\n", run.Inserted)
	fmt.Printf("Skipped duplicates: %d\n", run.Skipped)
	fmt.Printf("Updated: %d\n", run.Updated)
	fmt.Printf("Failed: %d\n", len(run.Failed))
	fmt.Printf("Amount ingested: %.2f\n", run.TotalAmountInserted)
	if run.TimedOut {
		fmt.Println(f.render(f.warnStyle, "Run hit its deadline; remaining candidates were recorded for retry"))
	}

	if len(run.Failed) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "MESSAGE\tATTACHMENT\tSTAGE\tREASON\tATTEMPTS\tPERMANENT")
		for _, failure := range run.Failed {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%v\n",
				truncate(failure.SourceMessageID, 18),
				truncate(failure.AttachmentID, 12),
				failure.Stage,
				truncate(failure.Reason, 40),
				failure.Attempts,
				failure.Permanent)
		}
	}

	return nil
}

// PrintStats prints spend aggregates and warranty alerts
func (f *OutputFormatter) PrintStats(response *handlers.StatsResponse) error {
	if f.format == "json" || f.quiet {
		return json.NewEncoder(os.Stdout).Encode(response)
	}

	s := response.Stats
	fmt.Printf("Total invoices: %d\n", s.TotalCount)
	fmt.Printf("Total spend: %.2f\n", s.TotalSpend)
	fmt.Printf("Recent (30d): %d\n", s.RecentCount)
	for docType, count := range s.CountByType {
		fmt.Printf("  %s: %d\n", docType, count)
	}

	if len(response.WarrantyAlerts) > 0 {
		fmt.Println()
		fmt.Println("Warranty alerts:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "VENDOR\tPURCHASED\tEXPIRES\tDAYS LEFT\tSTATUS")
		for _, alert := range response.WarrantyAlerts {
			status := string(alert.Status)
			switch alert.Status {
			case stats.WarrantyExpired:
				status = f.render(f.errorStyle, status)
			case stats.WarrantyExpiring:
				status = f.render(f.warnStyle, status)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				truncate(alert.Vendor, 20),
				alert.PurchaseDate.Format("2006-01-02"),
				alert.ExpiryDate.Format("2006-01-02"),
				alert.DaysUntilExpiry,
				status)
		}
	}

	return nil
}

// PrintFailures prints the retry backlog
func (f *OutputFormatter) PrintFailures(response *handlers.FailuresResponse) error {
	if f.format == "json" || f.quiet {
		return json.NewEncoder(os.Stdout).Encode(response)
	}

	fmt.Printf("Retryable: %d  Permanent: %d\n", response.RetryableCount, response.PermanentCount)
	if len(response.Failures) == 0 {
		fmt.Println("No failures awaiting retry.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "MESSAGE\tATTACHMENT\tSTAGE\tREASON\tATTEMPTS")
	for _, failure := range response.Failures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			truncate(failure.SourceMessageID, 18),
			truncate(failure.AttachmentID, 12),
			failure.Stage,
			truncate(failure.Reason, 40),
			failure.Attempts)
	}

	return nil
}

// PrintHealth prints per-dependency health states
func (f *OutputFormatter) PrintHealth(response *handlers.HealthResponse) error {
	if f.format == "json" || f.quiet {
		return json.NewEncoder(os.Stdout).Encode(response)
	}

	fmt.Printf("Status: %s\n", response.Status)
	for name, state := range response.Checks {
		fmt.Printf("  %s: %s\n", name, state)
	}
	if response.Message != "" {
		fmt.Printf("Message: %s\n", response.Message)
	}

	return nil
}

// printInvoicesTable prints invoices in table format
func (f *OutputFormatter) printInvoicesTable(response *handlers.InvoiceListResponse) error {
	if len(response.Invoices) == 0 {
		fmt.Println("No invoices found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tVENDOR\tTYPE\tDATE\tAMOUNT\tCONFIDENCE\tSOURCE")
	for _, invoice := range response.Invoices {
		date := ""
		if invoice.PurchaseDate != nil {
			date = invoice.PurchaseDate.Format("2006-01-02")
		}
		source := "attachment"
		if invoice.BodyOnly() {
			source = "body"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f %s\t%.2f\t%s\n",
			truncate(invoice.ID, 12),
			truncate(invoice.Vendor, 20),
			invoice.DocumentType,
			date,
			invoice.Amount,
			invoice.Currency,
			invoice.Confidence,
			source)
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d invoices\n", len(response.Invoices), response.Total)
	return nil
}

// printInvoiceTable prints a single invoice in table format
func (f *OutputFormatter) printInvoiceTable(invoice *database.Invoice) error {
	fmt.Printf("ID: %s\n", invoice.ID)
	fmt.Printf("Vendor: %s\n", invoice.Vendor)
	fmt.Printf("Type: %s\n", invoice.DocumentType)
	if invoice.PurchaseDate != nil {
		fmt.Printf("Purchase date: %s\n", invoice.PurchaseDate.Format("2006-01-02"))
	}
	fmt.Printf("Amount: %.2f %s\n", invoice.Amount, invoice.Currency)
	if invoice.InvoiceNumber != "" {
		fmt.Printf("Invoice number: %s\n", invoice.InvoiceNumber)
	}
	if invoice.Category != "" {
		fmt.Printf("Category: %s\n", invoice.Category)
	}
	if invoice.WarrantyPeriodDays > 0 {
		fmt.Printf("Warranty: %d days\n", invoice.WarrantyPeriodDays)
	}
	fmt.Printf("Confidence: %.2f\n", invoice.Confidence)
	fmt.Printf("Email subject: %s\n", invoice.EmailSubject)
	fmt.Printf("Email from: %s\n", invoice.EmailFrom)
	fmt.Printf("Created: %s\n", invoice.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(invoice.Items) > 0 {
		fmt.Println("Items:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "  NAME\tQTY\tUNIT PRICE\tTOTAL")
		for _, item := range invoice.Items {
			fmt.Fprintf(w, "  %s\t%d\t%.2f\t%.2f\n", truncate(item.Name, 35), item.Quantity, item.UnitPrice, item.TotalPrice)
		}
	}

	return nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
