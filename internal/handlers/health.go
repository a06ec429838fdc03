package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/database"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/parser"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db      *database.DB
	mailbox email.MailboxClient
	parser  parser.Parser
	cache   *cache.Manager
}

// NewHealthHandler creates a new health handler. Mailbox and parser may be
// nil when those integrations are not configured.
func NewHealthHandler(db *database.DB, mailbox email.MailboxClient, p parser.Parser, c *cache.Manager) *HealthHandler {
	return &HealthHandler{db: db, mailbox: mailbox, parser: p, cache: c}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Message string            `json:"message,omitempty"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Checks: map[string]string{},
	}

	if err := h.db.IsHealthy(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = "error"
		response.Message = err.Error()
	} else {
		response.Checks["database"] = "ok"
	}

	if h.mailbox == nil {
		response.Checks["mailbox"] = "disabled"
	} else if err := h.mailbox.HealthCheck(ctx); err != nil {
		response.Status = "unhealthy"
		response.Checks["mailbox"] = "error"
		if response.Message == "" {
			response.Message = err.Error()
		}
	} else {
		response.Checks["mailbox"] = "ok"
	}

	if h.parser == nil {
		response.Checks["parser"] = "disabled"
	} else if err := h.parser.HealthCheck(ctx); err != nil {
		response.Status = "unhealthy"
		response.Checks["parser"] = "error"
		if response.Message == "" {
			response.Message = err.Error()
		}
	} else {
		response.Checks["parser"] = "ok"
	}

	if h.cache == nil || h.cache.Disabled() {
		response.Checks["cache"] = "disabled"
	} else {
		response.Checks["cache"] = "ok"
	}

	code := http.StatusOK
	if response.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
