package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/database"
	"invoice-tracking/internal/dedup"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/extractor"
	"invoice-tracking/internal/handlers"
	"invoice-tracking/internal/parser"
	"invoice-tracking/internal/pipeline"
	"invoice-tracking/internal/ratelimit"
	"invoice-tracking/internal/stats"
)

type stubMailbox struct{}

func (m *stubMailbox) Search(ctx context.Context, query string, maxResults int64) ([]email.Message, error) {
	return nil, nil
}

func (m *stubMailbox) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	return nil, nil
}

func (m *stubMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	return nil, nil
}

func (m *stubMailbox) HealthCheck(ctx context.Context) error { return nil }
func (m *stubMailbox) Close() error                          { return nil }

func setupTestServer(t *testing.T) http.Handler {
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	db, err := database.Open(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loader := func(userID string) (*cache.Snapshot, error) {
		invoices, err := db.Invoices.GetAll(userID)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		return &cache.Snapshot{
			Invoices:  invoices,
			Stats:     stats.ComputeStatsFrom(invoices, now),
			Alerts:    stats.ComputeWarrantyAlertsFrom(invoices, stats.DefaultWarrantyWindowDays, now),
			CreatedAt: now,
		}, nil
	}
	cacheManager := cache.NewManager(loader, false, time.Minute)

	mailbox := &stubMailbox{}
	p := parser.NewNoOpParser()
	orchestrator := pipeline.NewOrchestrator(
		mailbox,
		email.NewQueryBuilder(),
		extractor.New(mailbox, nil),
		parser.NewClassifier(),
		p,
		dedup.NewGate(db.Invoices),
		db.FailedCandidates,
		cacheManager,
		nil,
	)

	return NewHandler(&Deps{
		DB:           db,
		Cache:        cacheManager,
		Orchestrator: orchestrator,
		Limiter:      ratelimit.NewRunLimiter(time.Minute, true),
		Mailbox:      mailbox,
		Parser:       p,
	})
}

func TestRouterRequiresUser(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/invoices", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without user header, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/invoices", nil)
	req.Header.Set(handlers.UserIDHeader, "alice")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with user header, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouterHealthWithoutUser(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for health, got %d: %s", w.Code, w.Body.String())
	}

	var response handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", response.Status)
	}
}

func TestRouterFullProcessFlow(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/process", nil)
	req.Header.Set(handlers.UserIDHeader, "alice")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for process, got %d: %s", w.Code, w.Body.String())
	}

	var run pipeline.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("Failed to decode run summary: %v", err)
	}
	if run.UserID != "alice" {
		t.Errorf("Expected run for alice, got %s", run.UserID)
	}

	// Stats reachable after processing
	req = httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set(handlers.UserIDHeader, "alice")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for stats, got %d: %s", w.Code, w.Body.String())
	}

	var statsResponse handlers.StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &statsResponse); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}
	if statsResponse.Stats.TotalCount != 0 {
		t.Errorf("Expected empty store, got %d invoices", statsResponse.Stats.TotalCount)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/unknown", nil)
	req.Header.Set(handlers.UserIDHeader, "alice")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown route, got %d", w.Code)
	}
}
