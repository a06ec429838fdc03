package stats

import (
	"time"

	"invoice-tracking/internal/database"
)

// DefaultWarrantyPeriodDays is assumed when an invoice carries no explicit
// warranty period.
const DefaultWarrantyPeriodDays = 365

// DefaultWarrantyWindowDays is the lookahead used to classify an alert
// as expiring.
const DefaultWarrantyWindowDays = 30

// recentWindowDays bounds the "recent" count in Stats
const recentWindowDays = 30

// Stats summarizes a user's persisted invoices
type Stats struct {
	TotalCount  int            `json:"total_count"`
	TotalSpend  float64        `json:"total_spend"`
	CountByType map[string]int `json:"count_by_type"`
	RecentCount int            `json:"recent_count"`
}

// WarrantyStatus classifies how close an invoice is to warranty expiry
type WarrantyStatus string

const (
	WarrantyActive   WarrantyStatus = "active"
	WarrantyExpiring WarrantyStatus = "expiring"
	WarrantyExpired  WarrantyStatus = "expired"
)

// WarrantyAlert is derived per invoice on every read and never stored
type WarrantyAlert struct {
	InvoiceID       string         `json:"invoice_id"`
	Vendor          string         `json:"vendor"`
	PurchaseDate    time.Time      `json:"purchase_date"`
	ExpiryDate      time.Time      `json:"expiry_date"`
	DaysUntilExpiry int            `json:"days_until_expiry"`
	Status          WarrantyStatus `json:"status"`
}

// Aggregator computes read-only aggregates over the invoice store
type Aggregator struct {
	store *database.InvoiceStore

	// Now allows tests to pin the clock; zero means time.Now
	Now func() time.Time
}

// NewAggregator creates a stats aggregator over the invoice store
func NewAggregator(store *database.InvoiceStore) *Aggregator {
	return &Aggregator{store: store}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// ComputeStats returns spend totals and counts for a user
func (a *Aggregator) ComputeStats(userID string) (*Stats, error) {
	invoices, err := a.store.GetAll(userID)
	if err != nil {
		return nil, err
	}
	return ComputeStatsFrom(invoices, a.now()), nil
}

// ComputeStatsFrom aggregates an already-loaded invoice slice. Split out
// so cached snapshots can recompute without a store round trip.
func ComputeStatsFrom(invoices []database.Invoice, now time.Time) *Stats {
	stats := &Stats{
		CountByType: make(map[string]int),
	}

	recentCutoff := now.AddDate(0, 0, -recentWindowDays)
	for _, invoice := range invoices {
		stats.TotalCount++
		stats.TotalSpend += invoice.Amount
		stats.CountByType[invoice.DocumentType]++
		if invoice.PurchaseDate != nil && invoice.PurchaseDate.After(recentCutoff) {
			stats.RecentCount++
		}
	}

	return stats
}

// ComputeWarrantyAlerts derives warranty alerts for every dated invoice.
// windowDays <= 0 falls back to the default window.
func (a *Aggregator) ComputeWarrantyAlerts(userID string, windowDays int) ([]WarrantyAlert, error) {
	invoices, err := a.store.GetAll(userID)
	if err != nil {
		return nil, err
	}
	return ComputeWarrantyAlertsFrom(invoices, windowDays, a.now()), nil
}

// Load fetches a user's invoices once and derives stats plus warranty
// alerts from the same slice.
func (a *Aggregator) Load(userID string, windowDays int) ([]database.Invoice, *Stats, []WarrantyAlert, error) {
	invoices, err := a.store.GetAll(userID)
	if err != nil {
		return nil, nil, nil, err
	}
	now := a.now()
	return invoices, ComputeStatsFrom(invoices, now), ComputeWarrantyAlertsFrom(invoices, windowDays, now), nil
}

// ComputeWarrantyAlertsFrom derives alerts from an already-loaded slice
func ComputeWarrantyAlertsFrom(invoices []database.Invoice, windowDays int, now time.Time) []WarrantyAlert {
	if windowDays <= 0 {
		windowDays = DefaultWarrantyWindowDays
	}

	today := truncateToDay(now)

	var alerts []WarrantyAlert
	for _, invoice := range invoices {
		if invoice.PurchaseDate == nil {
			continue
		}

		period := invoice.WarrantyPeriodDays
		if period <= 0 {
			period = DefaultWarrantyPeriodDays
		}

		purchase := truncateToDay(*invoice.PurchaseDate)
		expiry := purchase.AddDate(0, 0, period)
		daysUntil := int(expiry.Sub(today).Hours() / 24)

		status := WarrantyActive
		switch {
		case daysUntil <= 0:
			status = WarrantyExpired
		case daysUntil <= windowDays:
			status = WarrantyExpiring
		}

		alerts = append(alerts, WarrantyAlert{
			InvoiceID:       invoice.ID,
			Vendor:          invoice.Vendor,
			PurchaseDate:    purchase,
			ExpiryDate:      expiry,
			DaysUntilExpiry: daysUntil,
			Status:          status,
		})
	}

	return alerts
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
