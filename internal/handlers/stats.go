package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/stats"
)

// StatsHandler serves aggregate spend and warranty views
type StatsHandler struct {
	cache *cache.Manager
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(cacheManager *cache.Manager) *StatsHandler {
	return &StatsHandler{cache: cacheManager}
}

// StatsResponse bundles aggregates with their cache provenance
type StatsResponse struct {
	Stats           *stats.Stats          `json:"stats"`
	WarrantyAlerts  []stats.WarrantyAlert `json:"warranty_alerts"`
	CacheAgeSeconds float64               `json:"cache_age_seconds"`
}

// GetStats handles GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	snapshot, err := h.cache.GetOrRefresh(userID, forceRefresh)
	if err != nil {
		log.Printf("ERROR: Failed to compute stats for %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("Failed to compute stats: %v", err), http.StatusInternalServerError)
		return
	}

	alerts := snapshot.Alerts
	if alerts == nil {
		alerts = []stats.WarrantyAlert{}
	}

	response := StatsResponse{
		Stats:           snapshot.Stats,
		WarrantyAlerts:  alerts,
		CacheAgeSeconds: snapshot.Age().Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
