package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"invoice-tracking/internal/handlers"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler(), mw("first"), mw("second"))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected middleware order [first second], got %v", order)
	}
}

func TestUserMiddleware(t *testing.T) {
	handler := UserMiddleware(okHandler())

	t.Run("MissingHeader", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/invoices", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without user header, got %d", w.Code)
		}
	})

	t.Run("WithHeader", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/invoices", nil)
		req.Header.Set(handlers.UserIDHeader, "alice")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 with user header, got %d", w.Code)
		}
	})

	t.Run("HealthExempt", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected health to bypass auth, got %d", w.Code)
		}
	})

	t.Run("NonAPIRouteExempt", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected non-API route to bypass auth, got %d", w.Code)
		}
	})
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/api/invoices", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %s", got)
	}

	// Preflight requests short-circuit
	req = httptest.NewRequest("OPTIONS", "/api/invoices", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", w.Code)
	}
	if w.Body.String() == "ok" {
		t.Error("Expected preflight to short-circuit before handler")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", w.Code)
	}
}

func TestSecurityMiddleware(t *testing.T) {
	handler := SecurityMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected nosniff, got %s", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("Expected DENY, got %s", got)
	}
}

func TestContentTypeMiddleware(t *testing.T) {
	handler := ContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/invoices", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected JSON content type on API route, got %s", got)
	}

	req = httptest.NewRequest("GET", "/other", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Type"); got == "application/json" {
		t.Error("Expected no forced content type off API routes")
	}
}
