// Copyright 2024 Invoice Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoice-tracking/internal/api"
	"invoice-tracking/internal/config"
	"invoice-tracking/internal/handlers"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var (
	configFile string
	dryRun     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invoice-ingest",
	Short: "Periodic invoice ingestion daemon for the invoice tracking system",
	Long: `Invoice Ingest Daemon v1.0.0

DESCRIPTION:
    Periodically asks the invoice tracking API to scan the configured mailbox
    for invoice and receipt emails, parse them, and store the results. Failed
    candidates are retried on the following cycle.

CONFIGURATION:
    Configuration is done via a config file (invoice-ingest.yaml, .toml or
    .json in ., ./config or ~/.invoice-tracker) and environment variables:

    Gmail API Configuration:
        INVOICE_TRACKER_GMAIL_CLIENT_ID       - OAuth2 client ID
        INVOICE_TRACKER_GMAIL_CLIENT_SECRET   - OAuth2 client secret
        INVOICE_TRACKER_GMAIL_REFRESH_TOKEN   - OAuth2 refresh token
        (bare GMAIL_* variables are also honored)

    Search Configuration:
        INVOICE_TRACKER_SEARCH_QUERY            - Custom mailbox search query
        INVOICE_TRACKER_SEARCH_AFTER_DAYS       - Only scan emails from last N days (default: 30)
        INVOICE_TRACKER_SEARCH_MAX_RESULTS      - Maximum emails per scan (default: 50)
        INVOICE_TRACKER_SEARCH_SUBJECT_KEYWORDS - Extra subject keywords, comma separated
        INVOICE_TRACKER_SEARCH_VENDOR_DOMAINS   - Extra vendor domains, comma separated

    Processing Configuration:
        INVOICE_TRACKER_CHECK_INTERVAL     - How often to trigger a scan (default: 1h)
        INVOICE_TRACKER_PROCESSING_TIMEOUT - Per-run deadline (default: 5m)
        INVOICE_TRACKER_WORKERS            - Parallel parse workers (default: 4)
        INVOICE_TRACKER_SKIP_EXISTING      - Skip already-stored invoices (default: true)
        INVOICE_TRACKER_STORE_RAW_PDF      - Store raw PDF bytes (default: false)
        INVOICE_TRACKER_RETRY_FAILED       - Retry failed candidates each cycle (default: true)
        INVOICE_TRACKER_USER_ID            - User the invoices belong to (default: default)
        INVOICE_TRACKER_DRY_RUN            - Report what would run without processing (default: false)

    API Configuration:
        INVOICE_TRACKER_API_URL         - Invoice tracking API URL (default: http://localhost:8080)
        INVOICE_TRACKER_API_TIMEOUT     - API request timeout (default: 30s)
        INVOICE_TRACKER_API_RETRY_COUNT - Number of API retries (default: 3)
        INVOICE_TRACKER_API_RETRY_DELAY - Delay between retries (default: 1s)

EXAMPLES:
    # Basic usage
    export INVOICE_TRACKER_API_URL="http://localhost:8080"
    invoice-ingest

    # With a custom configuration file
    invoice-ingest --config=./config/invoice-ingest.yaml

    # Dry run mode for testing
    invoice-ingest --dry-run`,
	Version: Version,
	RunE:    runIngest,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is invoice-ingest.{yaml,toml,json} in ., ./config or ~/.invoice-tracker)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report what each cycle would do without triggering processing")
}

// loadConfiguration loads daemon configuration, honoring the --config flag
func loadConfiguration() (*config.IngestConfig, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	cfg, err := config.LoadIngestConfigWithViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if dryRun {
		cfg.Processing.DryRun = true
	}

	return cfg, nil
}

// runIngest is the main execution function for the ingest daemon
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Starting invoice ingest daemon",
		"version", Version,
		"build_date", BuildDate)

	logger.Info("Configuration loaded successfully",
		"dry_run", cfg.Processing.DryRun,
		"check_interval", cfg.Processing.CheckInterval,
		"user_id", cfg.Processing.UserID,
		"api_url", cfg.API.URL)

	client := api.NewClient(&api.ClientConfig{
		BaseURL:       cfg.API.URL,
		UserID:        cfg.Processing.UserID,
		Timeout:       cfg.API.Timeout,
		RetryCount:    cfg.API.RetryCount,
		RetryDelay:    cfg.API.RetryDelay,
		UserAgent:     cfg.API.UserAgent,
		BackoffFactor: cfg.API.BackoffFactor,
	})

	// Test API connection before entering the loop
	if _, err := client.HealthCheck(); err != nil {
		logger.Error("API health check failed", "error", err, "url", cfg.API.URL)
		return fmt.Errorf("API health check failed: %w", err)
	}

	logger.Info("API client initialized successfully", "url", cfg.API.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// First cycle runs immediately, then on the ticker
	runCycle(cfg, client, logger)

	ticker := time.NewTicker(cfg.Processing.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(cfg, client, logger)
		case <-ctx.Done():
			logger.Info("Received shutdown signal, stopping ingest daemon")
			return nil
		}
	}
}

// runCycle triggers one processing pass and, if configured, a retry pass.
func runCycle(cfg *config.IngestConfig, client *api.Client, logger *slog.Logger) {
	skip := cfg.Processing.SkipExisting
	req := &handlers.ProcessRequest{
		Days:         cfg.Search.AfterDays,
		MaxResults:   int64(cfg.Search.MaxResults),
		SkipExisting: &skip,
		StoreRawPDF:  cfg.Processing.StoreRawPDF,
		Workers:      cfg.Processing.Workers,
		TimeoutSecs:  int(cfg.Processing.ProcessingTimeout.Seconds()),
	}

	if cfg.Processing.DryRun {
		logger.Info("Dry run: skipping process request",
			"days", req.Days,
			"max_results", req.MaxResults,
			"workers", req.Workers)
		return
	}

	logger.Info("Triggering processing run", "days", req.Days, "max_results", req.MaxResults)

	run, err := client.ProcessInvoices(req)
	if err != nil {
		logger.Error("Processing run failed", "error", err)
		return
	}

	logger.Info("Processing run completed",
		"scanned", run.MessagesScanned,
		"inserted", run.Inserted,
		"skipped", run.Skipped,
		"updated", run.Updated,
		"failed", len(run.Failed),
		"timed_out", run.TimedOut)

	if !cfg.Processing.RetryFailed {
		return
	}

	// The retry pass immediately follows the main run, so it has to
	// bypass the per-user run throttle.
	retryReq := *req
	retryReq.Force = true

	retry, err := client.RetryFailed(&retryReq)
	if err != nil {
		logger.Error("Retry run failed", "error", err)
		return
	}

	if retry.CandidatesSeen > 0 || len(retry.Failed) > 0 {
		logger.Info("Retry run completed",
			"candidates", retry.CandidatesSeen,
			"inserted", retry.Inserted,
			"failed", len(retry.Failed))
	}
}
