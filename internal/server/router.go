package server

import (
	"net/http"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/database"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/handlers"
	"invoice-tracking/internal/parser"
	"invoice-tracking/internal/pipeline"
	"invoice-tracking/internal/ratelimit"

	"github.com/go-chi/chi/v5"
)

// Deps holds everything the HTTP surface needs
type Deps struct {
	DB           *database.DB
	Cache        *cache.Manager
	Orchestrator *pipeline.Orchestrator
	Limiter      *ratelimit.RunLimiter
	Mailbox      email.MailboxClient
	Parser       parser.Parser
}

// NewRouter builds the chi router with all API routes registered
func NewRouter(deps *Deps) chi.Router {
	invoiceHandler := handlers.NewInvoiceHandler(deps.DB, deps.Cache)
	statsHandler := handlers.NewStatsHandler(deps.Cache)
	processHandler := handlers.NewProcessHandler(deps.Orchestrator, deps.Limiter, deps.DB.FailedCandidates)
	analyzeHandler := handlers.NewAnalyzeHandler(deps.Parser)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Mailbox, deps.Parser, deps.Cache)

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", processHandler.ProcessInvoices)
		r.Post("/retry", processHandler.RetryFailed)
		r.Get("/failures", processHandler.GetFailures)
		r.Post("/analyze-text", analyzeHandler.AnalyzeText)

		r.Get("/invoices", invoiceHandler.GetInvoices)
		r.Get("/invoices/{id}", invoiceHandler.GetInvoiceByID)
		r.Delete("/invoices/{id}", invoiceHandler.DeleteInvoice)
		r.Get("/invoices/{id}/pdf", invoiceHandler.GetInvoicePDF)

		r.Get("/stats", statsHandler.GetStats)
		r.Get("/health", healthHandler.HealthCheck)
	})

	return r
}

// NewHandler wraps the router in the standard middleware chain
func NewHandler(deps *Deps) http.Handler {
	return Chain(
		NewRouter(deps),
		LoggingMiddleware,
		RecoveryMiddleware,
		CORSMiddleware,
		UserMiddleware,
		ContentTypeMiddleware,
		SecurityMiddleware,
	)
}
