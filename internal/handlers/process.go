package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"invoice-tracking/internal/database"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/parser"
	"invoice-tracking/internal/pipeline"
	"invoice-tracking/internal/ratelimit"
)

// ProcessHandler triggers pipeline runs over HTTP
type ProcessHandler struct {
	orchestrator *pipeline.Orchestrator
	limiter      *ratelimit.RunLimiter
	failures     *database.FailedCandidateStore
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(orchestrator *pipeline.Orchestrator, limiter *ratelimit.RunLimiter, failures *database.FailedCandidateStore) *ProcessHandler {
	return &ProcessHandler{
		orchestrator: orchestrator,
		limiter:      limiter,
		failures:     failures,
	}
}

// ProcessRequest is the body for POST /api/process and /api/retry
type ProcessRequest struct {
	Days         int           `json:"days,omitempty"`
	MaxResults   int64         `json:"max_results,omitempty"`
	SkipExisting *bool         `json:"skip_existing,omitempty"`
	StoreRawPDF  bool          `json:"store_raw_pdf,omitempty"`
	Workers      int           `json:"workers,omitempty"`
	TimeoutSecs  int           `json:"timeout_seconds,omitempty"`
	Force        bool          `json:"force,omitempty"`
}

func (req *ProcessRequest) options(retry bool) pipeline.Options {
	opts := pipeline.Options{
		Days:         req.Days,
		MaxResults:   req.MaxResults,
		SkipExisting: req.SkipExisting,
		StoreRawPDF:  req.StoreRawPDF,
		Workers:      req.Workers,
		RetryFailed:  retry,
	}
	if req.TimeoutSecs > 0 {
		opts.RunTimeout = time.Duration(req.TimeoutSecs) * time.Second
	}
	return opts
}

// ProcessInvoices handles POST /api/process
func (h *ProcessHandler) ProcessInvoices(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, false)
}

// RetryFailed handles POST /api/retry
func (h *ProcessHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, true)
}

func (h *ProcessHandler) run(w http.ResponseWriter, r *http.Request, retry bool) {
	userID := UserID(r)

	var req ProcessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	// Back-to-back runs get throttled unless explicitly forced
	result := h.limiter.Check(userID, req.Force)
	if result.ShouldBlock {
		log.Printf("WARN: Rate limited processing run for %s: %s", userID, result.Reason)
		http.Error(w, fmt.Sprintf("Rate limit exceeded. Please wait %v before processing again",
			result.RemainingTime.Truncate(time.Second)), http.StatusTooManyRequests)
		return
	}

	run, err := h.orchestrator.Process(r.Context(), userID, req.options(retry))
	if err != nil {
		var authErr *pipeline.AuthError
		if errors.As(err, &authErr) || errors.Is(err, email.ErrAuthExpired) {
			log.Printf("ERROR: Mailbox auth failed for %s: %v", userID, err)
			http.Error(w, "Mailbox credentials expired or revoked", http.StatusUnauthorized)
			return
		}
		var queryErr *pipeline.QueryFatalError
		if errors.As(err, &queryErr) {
			log.Printf("ERROR: Mailbox query failed for %s: %v", userID, err)
			http.Error(w, fmt.Sprintf("Mailbox query failed: %v", err), http.StatusBadGateway)
			return
		}
		log.Printf("ERROR: Processing run failed for %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("Processing failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(run)
}

// FailuresResponse lists candidates awaiting retry
type FailuresResponse struct {
	Failures       []database.FailedCandidate `json:"failures"`
	RetryableCount int                        `json:"retryable_count"`
	PermanentCount int                        `json:"permanent_count"`
}

// GetFailures handles GET /api/failures
func (h *ProcessHandler) GetFailures(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	failures, err := h.failures.GetRetryable(userID)
	if err != nil {
		log.Printf("ERROR: Failed to list failures for %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("Failed to list failures: %v", err), http.StatusInternalServerError)
		return
	}
	if failures == nil {
		failures = []database.FailedCandidate{}
	}

	retryable, permanent, err := h.failures.CountByUser(userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to count failures: %v", err), http.StatusInternalServerError)
		return
	}

	response := FailuresResponse{
		Failures:       failures,
		RetryableCount: retryable,
		PermanentCount: permanent,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// AnalyzeHandler parses ad-hoc document text without touching the mailbox
type AnalyzeHandler struct {
	parser parser.Parser
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(p parser.Parser) *AnalyzeHandler {
	return &AnalyzeHandler{parser: p}
}

// AnalyzeRequest is the body for POST /api/analyze-text
type AnalyzeRequest struct {
	Text     string `json:"text"`
	Subject  string `json:"subject,omitempty"`
	From     string `json:"from,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// AnalyzeText handles POST /api/analyze-text
func (h *AnalyzeHandler) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	candidate := &email.CandidateDocument{
		SourceMessageID: "adhoc",
		Filename:        req.Filename,
		RawText:         req.Text,
		EmailSubject:    req.Subject,
		EmailFrom:       req.From,
	}

	record, err := h.parser.Parse(r.Context(), candidate)
	if err != nil {
		log.Printf("WARN: Ad-hoc parse failed: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse document: %v", err), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(record)
}
