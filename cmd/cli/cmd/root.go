package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"invoice-tracking/internal/api"
	cliapi "invoice-tracking/internal/cli"
)

var (
	serverURL string
	userID    string
	format    string
	quiet     bool
	noColor   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invoice-tracker",
	Short: "CLI client for invoice tracking API",
	Long: `Invoice Tracker CLI allows you to manage invoices extracted from your
mailbox through a REST API. You can trigger processing runs, list stored
invoices, inspect warranty status, and review failed candidates.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "API server address")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "default", "User the invoices belong to")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")

	// Bind environment variables
	rootCmd.PersistentFlags().Lookup("server").DefValue = getEnvOrDefault("INVOICE_TRACKER_SERVER", "http://localhost:8080")
	rootCmd.PersistentFlags().Lookup("user").DefValue = getEnvOrDefault("INVOICE_TRACKER_USER", "default")
	rootCmd.PersistentFlags().Lookup("format").DefValue = getEnvOrDefault("INVOICE_TRACKER_FORMAT", "table")
	rootCmd.PersistentFlags().Lookup("quiet").DefValue = getEnvOrDefault("INVOICE_TRACKER_QUIET", "false")
	rootCmd.PersistentFlags().Lookup("no-color").DefValue = getEnvOrDefault("NO_COLOR", "false")
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}

// initializeClient sets up configuration, formatter, and API client
func initializeClient() (*cliapi.Config, *cliapi.OutputFormatter, *api.Client, error) {
	config, err := cliapi.LoadConfig(serverURL, userID, format, quiet)
	if err != nil {
		return nil, nil, nil, err
	}

	formatter := cliapi.NewOutputFormatterWithColor(config.Format, config.Quiet, noColor)
	client := api.NewClient(&api.ClientConfig{
		BaseURL: config.ServerURL,
		UserID:  config.UserID,
	})

	// Test connectivity
	if _, err := client.HealthCheck(); err != nil {
		formatter.PrintError(err)
		return nil, nil, nil, err
	}

	return config, formatter, client, nil
}
