package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/config"
	"invoice-tracking/internal/database"
	"invoice-tracking/internal/dedup"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/extractor"
	"invoice-tracking/internal/parser"
	"invoice-tracking/internal/pipeline"
	"invoice-tracking/internal/ratelimit"
	"invoice-tracking/internal/server"
	"invoice-tracking/internal/stats"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Initialize database
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Database initialized at %s", cfg.DBPath)

	ctx := context.Background()

	// Mailbox client is optional; processing runs fail cleanly without it
	var mailbox email.MailboxClient
	if cfg.HasGmailCredentials() {
		mailbox, err = email.NewGmailClient(ctx, &email.GmailConfig{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RefreshToken: cfg.GmailRefreshToken,
			AccessToken:  cfg.GmailAccessToken,
		})
		if err != nil {
			log.Fatalf("Failed to create mailbox client: %v", err)
		}
		defer mailbox.Close()
		log.Printf("Mailbox client initialized")
	} else {
		log.Printf("No mailbox credentials configured; processing disabled")
	}

	// Document parser
	p, err := parser.NewParser(ctx, parser.Config{
		Provider: cfg.ParserProvider,
		APIKey:   cfg.GeminiAPIKey,
		Model:    parserModel(cfg),
		Endpoint: cfg.OllamaURL,
		Timeout:  cfg.ParserTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create parser: %v", err)
	}
	defer p.Close()
	log.Printf("Parser provider: %s", cfg.ParserProvider)

	// Read cache over the invoice store
	aggregator := stats.NewAggregator(db.Invoices)
	loader := func(userID string) (*cache.Snapshot, error) {
		invoices, s, alerts, err := aggregator.Load(userID, stats.DefaultWarrantyWindowDays)
		if err != nil {
			return nil, err
		}
		return &cache.Snapshot{
			Invoices:  invoices,
			Stats:     s,
			Alerts:    alerts,
			CreatedAt: time.Now(),
		}, nil
	}
	cacheManager := cache.NewManager(loader, cfg.GetDisableCache(), cfg.CacheTTL)

	orchestrator := pipeline.NewOrchestrator(
		mailbox,
		email.NewQueryBuilder(),
		extractor.New(mailbox, logger),
		parser.NewClassifier(),
		p,
		dedup.NewGate(db.Invoices),
		db.FailedCandidates,
		cacheManager,
		logger,
	)

	limiter := ratelimit.NewRunLimiter(ratelimit.RunInterval, cfg.GetDisableRateLimit())

	handler := server.NewHandler(&server.Deps{
		DB:           db,
		Cache:        cacheManager,
		Orchestrator: orchestrator,
		Limiter:      limiter,
		Mailbox:      mailbox,
		Parser:       p,
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: handler,

		// Timeouts generous enough for synchronous processing runs
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownTimeout := 30 * time.Second
	if err := server.HandleSignals(srv, shutdownTimeout); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newLogger builds the process-wide structured logger
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

// parserModel picks the model name for the configured provider
func parserModel(cfg *config.Config) string {
	if cfg.ParserProvider == config.ParserProviderOllama {
		return cfg.OllamaModel
	}
	return cfg.GeminiModel
}
