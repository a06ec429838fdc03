package stats

import (
	"testing"
	"time"

	"invoice-tracking/internal/database"
)

var statsNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func datedInvoice(id string, daysAgo int, warrantyDays int) database.Invoice {
	purchase := statsNow.AddDate(0, 0, -daysAgo)
	return database.Invoice{
		ID:                 id,
		UserID:             "user-1",
		DocumentType:       "invoice",
		Vendor:             "Amazon",
		PurchaseDate:       &purchase,
		Amount:             1000,
		WarrantyPeriodDays: warrantyDays,
	}
}

func TestComputeStatsFrom(t *testing.T) {
	old := datedInvoice("inv-1", 90, 0)
	recent := datedInvoice("inv-2", 5, 0)
	recent.Amount = 250.50
	recent.DocumentType = "receipt"
	undated := database.Invoice{ID: "inv-3", DocumentType: "document", Amount: 99}

	stats := ComputeStatsFrom([]database.Invoice{old, recent, undated}, statsNow)

	if stats.TotalCount != 3 {
		t.Errorf("Expected 3 invoices, got %d", stats.TotalCount)
	}
	if stats.TotalSpend != 1349.50 {
		t.Errorf("Expected total spend 1349.50, got %f", stats.TotalSpend)
	}
	if stats.CountByType["invoice"] != 1 || stats.CountByType["receipt"] != 1 || stats.CountByType["document"] != 1 {
		t.Errorf("Unexpected type counts: %v", stats.CountByType)
	}
	if stats.RecentCount != 1 {
		t.Errorf("Expected 1 recent invoice, got %d", stats.RecentCount)
	}
}

func TestWarrantyBoundary(t *testing.T) {
	tests := []struct {
		name       string
		daysAgo    int
		wantDays   int
		wantStatus WarrantyStatus
	}{
		{"expiring at window boundary", 335, 30, WarrantyExpiring},
		{"active just outside window", 334, 31, WarrantyActive},
		{"expiring inside window", 360, 5, WarrantyExpiring},
		{"expired exactly at expiry", 365, 0, WarrantyExpired},
		{"expired past expiry", 400, -35, WarrantyExpired},
		{"active far from expiry", 10, 355, WarrantyActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoice := datedInvoice("inv-1", tt.daysAgo, 365)
			alerts := ComputeWarrantyAlertsFrom([]database.Invoice{invoice}, 30, statsNow)

			if len(alerts) != 1 {
				t.Fatalf("Expected 1 alert, got %d", len(alerts))
			}
			if alerts[0].DaysUntilExpiry != tt.wantDays {
				t.Errorf("Expected %d days until expiry, got %d", tt.wantDays, alerts[0].DaysUntilExpiry)
			}
			if alerts[0].Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, alerts[0].Status)
			}
		})
	}
}

func TestWarrantyDefaultPeriod(t *testing.T) {
	// No explicit warranty period falls back to 365 days
	invoice := datedInvoice("inv-1", 335, 0)

	alerts := ComputeWarrantyAlertsFrom([]database.Invoice{invoice}, 30, statsNow)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].DaysUntilExpiry != 30 {
		t.Errorf("Expected 30 days with default period, got %d", alerts[0].DaysUntilExpiry)
	}
	if alerts[0].Status != WarrantyExpiring {
		t.Errorf("Expected expiring, got %s", alerts[0].Status)
	}
}

func TestWarrantyExplicitPeriod(t *testing.T) {
	// A 730-day warranty purchased a year ago is still active
	invoice := datedInvoice("inv-1", 365, 730)

	alerts := ComputeWarrantyAlertsFrom([]database.Invoice{invoice}, 30, statsNow)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Status != WarrantyActive {
		t.Errorf("Expected active, got %s", alerts[0].Status)
	}
	if alerts[0].DaysUntilExpiry != 365 {
		t.Errorf("Expected 365 days until expiry, got %d", alerts[0].DaysUntilExpiry)
	}
}

func TestWarrantySkipsUndatedInvoices(t *testing.T) {
	undated := database.Invoice{ID: "inv-1", Vendor: "Amazon"}

	alerts := ComputeWarrantyAlertsFrom([]database.Invoice{undated}, 30, statsNow)
	if len(alerts) != 0 {
		t.Errorf("Undated invoices should produce no alerts, got %d", len(alerts))
	}
}

func TestAggregatorReadsStore(t *testing.T) {
	db := openStatsDB(t)

	purchase := statsNow.AddDate(0, 0, -10)
	invoice := &database.Invoice{
		UserID:          "user-1",
		SourceMessageID: "msg-1",
		DocumentType:    "invoice",
		Vendor:          "Flipkart",
		PurchaseDate:    &purchase,
		Amount:          500,
	}
	if err := db.Invoices.Create(invoice); err != nil {
		t.Fatalf("Failed to create invoice: %v", err)
	}

	agg := NewAggregator(db.Invoices)
	agg.Now = func() time.Time { return statsNow }

	stats, err := agg.ComputeStats("user-1")
	if err != nil {
		t.Fatalf("ComputeStats failed: %v", err)
	}
	if stats.TotalCount != 1 || stats.TotalSpend != 500 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	alerts, err := agg.ComputeWarrantyAlerts("user-1", 0)
	if err != nil {
		t.Fatalf("ComputeWarrantyAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Status != WarrantyActive {
		t.Errorf("Unexpected alerts: %+v", alerts)
	}

	invoices, loadedStats, loadedAlerts, err := agg.Load("user-1", 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(invoices) != 1 || loadedStats.TotalCount != 1 || len(loadedAlerts) != 1 {
		t.Errorf("Unexpected load result: %d invoices, stats %+v, %d alerts",
			len(invoices), loadedStats, len(loadedAlerts))
	}

	// Other users see nothing
	empty, err := agg.ComputeStats("user-2")
	if err != nil {
		t.Fatalf("ComputeStats failed: %v", err)
	}
	if empty.TotalCount != 0 {
		t.Errorf("Expected empty stats for other user, got %+v", empty)
	}
}

func openStatsDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/stats_test.db")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
