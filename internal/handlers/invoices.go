package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/database"

	"github.com/go-chi/chi/v5"
)

// UserIDHeader carries the caller identity on every API request
const UserIDHeader = "X-User-ID"

// UserID extracts the caller identity from the request
func UserID(r *http.Request) string {
	return r.Header.Get(UserIDHeader)
}

// InvoiceHandler handles HTTP requests for stored invoices
type InvoiceHandler struct {
	db    *database.DB
	cache *cache.Manager
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(db *database.DB, cacheManager *cache.Manager) *InvoiceHandler {
	return &InvoiceHandler{db: db, cache: cacheManager}
}

// InvoiceListResponse is the paginated invoice listing
type InvoiceListResponse struct {
	Invoices []database.Invoice `json:"invoices"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// GetInvoices handles GET /api/invoices
func (h *InvoiceHandler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)
	if limit < 1 || limit > 500 {
		http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}
	if offset < 0 {
		http.Error(w, "offset must be non-negative", http.StatusBadRequest)
		return
	}

	snapshot, err := h.cache.GetOrRefresh(userID, false)
	if err != nil {
		log.Printf("ERROR: Failed to load invoices for %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("Failed to get invoices: %v", err), http.StatusInternalServerError)
		return
	}

	invoices := snapshot.Invoices
	total := len(invoices)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := invoices[offset:end]
	if page == nil {
		page = []database.Invoice{}
	}

	response := InvoiceListResponse{
		Invoices: page,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// GetInvoiceByID handles GET /api/invoices/{id}
func (h *InvoiceHandler) GetInvoiceByID(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	id := chi.URLParam(r, "id")

	invoice, err := h.db.Invoices.GetByID(userID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Invoice not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to get invoice %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get invoice: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(invoice)
}

// DeleteInvoice handles DELETE /api/invoices/{id}
func (h *InvoiceHandler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	id := chi.URLParam(r, "id")

	if err := h.db.Invoices.Delete(userID, id); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Invoice not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to delete invoice %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to delete invoice: %v", err), http.StatusInternalServerError)
		return
	}

	h.cache.Invalidate(userID)

	w.WriteHeader(http.StatusNoContent)
}

// GetInvoicePDF handles GET /api/invoices/{id}/pdf
func (h *InvoiceHandler) GetInvoicePDF(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	id := chi.URLParam(r, "id")

	data, err := h.db.Invoices.GetRawPDF(userID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Invoice not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to get PDF for invoice %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get PDF: %v", err), http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		http.Error(w, "No PDF stored for invoice", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseIntParam reads an integer query parameter with a default
func parseIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return parsed
}
