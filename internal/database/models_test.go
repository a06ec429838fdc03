package database

import (
	"database/sql"
	"os"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	// Create temporary file for test database
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	// Clean up the temp file when test completes
	t.Cleanup(func() {
		os.Remove(tmpfile.Name())
	})

	db, err := Open(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func sampleInvoice(userID string) *Invoice {
	purchaseDate := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	emailDate := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	return &Invoice{
		UserID:             userID,
		SourceMessageID:    "msg-100",
		AttachmentID:       "att-1",
		Filename:           "invoice.pdf",
		DocumentType:       "invoice",
		Vendor:             "Atomberg",
		PurchaseDate:       &purchaseDate,
		Amount:             3499.00,
		Currency:           "INR",
		InvoiceNumber:      "INV-2025-0042",
		Category:           "electronics",
		WarrantyPeriodDays: 730,
		Items: []LineItem{
			{Name: "Ceiling Fan", Quantity: 1, UnitPrice: 3499.00, TotalPrice: 3499.00},
		},
		Confidence:   0.9,
		EmailSubject: "Your order invoice",
		EmailFrom:    "billing@atomberg.com",
		EmailDate:    &emailDate,
	}
}

func TestInvoiceCreateAndGet(t *testing.T) {
	db := setupTestDB(t)

	invoice := sampleInvoice("user-1")
	if err := db.Invoices.Create(invoice); err != nil {
		t.Fatalf("Failed to create invoice: %v", err)
	}

	if invoice.ID == "" {
		t.Error("Create should assign an ID")
	}
	if invoice.CreatedAt.IsZero() {
		t.Error("Create should populate CreatedAt")
	}

	got, err := db.Invoices.GetByID("user-1", invoice.ID)
	if err != nil {
		t.Fatalf("Failed to get invoice: %v", err)
	}

	if got.Vendor != "Atomberg" {
		t.Errorf("Expected vendor Atomberg, got %s", got.Vendor)
	}
	if got.Amount != 3499.00 {
		t.Errorf("Expected amount 3499.00, got %f", got.Amount)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Ceiling Fan" || got.Items[0].TotalPrice != 3499.00 {
		t.Errorf("Items did not round-trip: %+v", got.Items)
	}
	if got.WarrantyPeriodDays != 730 {
		t.Errorf("Expected warranty 730 days, got %d", got.WarrantyPeriodDays)
	}
}

func TestInvoiceSourceKeyUnique(t *testing.T) {
	db := setupTestDB(t)

	first := sampleInvoice("user-1")
	if err := db.Invoices.Create(first); err != nil {
		t.Fatalf("Failed to create first invoice: %v", err)
	}

	duplicate := sampleInvoice("user-1")
	if err := db.Invoices.Create(duplicate); err == nil {
		t.Error("Expected unique constraint violation for duplicate source key")
	}

	// Same key under a different user is allowed
	otherUser := sampleInvoice("user-2")
	if err := db.Invoices.Create(otherUser); err != nil {
		t.Errorf("Same source key for another user should succeed: %v", err)
	}
}

func TestInvoiceGetBySourceKey(t *testing.T) {
	db := setupTestDB(t)

	invoice := sampleInvoice("user-1")
	if err := db.Invoices.Create(invoice); err != nil {
		t.Fatalf("Failed to create invoice: %v", err)
	}

	got, err := db.Invoices.GetBySourceKey("user-1", "msg-100", "att-1")
	if err != nil {
		t.Fatalf("GetBySourceKey failed: %v", err)
	}
	if got == nil || got.ID != invoice.ID {
		t.Errorf("Expected invoice %s, got %+v", invoice.ID, got)
	}

	missing, err := db.Invoices.GetBySourceKey("user-1", "msg-100", "att-other")
	if err != nil {
		t.Fatalf("GetBySourceKey failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing key, got %+v", missing)
	}
}

func TestInvoiceUpdatePreservesIdentity(t *testing.T) {
	db := setupTestDB(t)

	invoice := sampleInvoice("user-1")
	if err := db.Invoices.Create(invoice); err != nil {
		t.Fatalf("Failed to create invoice: %v", err)
	}

	originalID := invoice.ID
	originalCreatedAt := invoice.CreatedAt

	invoice.Vendor = "Atomberg Technologies"
	invoice.Amount = 3299.00
	if err := db.Invoices.Update(invoice); err != nil {
		t.Fatalf("Failed to update invoice: %v", err)
	}

	got, err := db.Invoices.GetByID("user-1", originalID)
	if err != nil {
		t.Fatalf("Failed to get updated invoice: %v", err)
	}
	if got.Vendor != "Atomberg Technologies" {
		t.Errorf("Expected updated vendor, got %s", got.Vendor)
	}
	if got.Amount != 3299.00 {
		t.Errorf("Expected updated amount, got %f", got.Amount)
	}
	if !got.CreatedAt.Equal(originalCreatedAt) {
		t.Errorf("CreatedAt changed on update: %v vs %v", got.CreatedAt, originalCreatedAt)
	}
}

func TestInvoiceUpdateMissing(t *testing.T) {
	db := setupTestDB(t)

	invoice := sampleInvoice("user-1")
	invoice.ID = "no-such-id"
	if err := db.Invoices.Update(invoice); err != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestInvoiceGetAllOrdering(t *testing.T) {
	db := setupTestDB(t)

	older := sampleInvoice("user-1")
	olderDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	older.PurchaseDate = &olderDate
	older.SourceMessageID = "msg-old"
	if err := db.Invoices.Create(older); err != nil {
		t.Fatalf("Failed to create older invoice: %v", err)
	}

	newer := sampleInvoice("user-1")
	newerDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newer.PurchaseDate = &newerDate
	newer.SourceMessageID = "msg-new"
	if err := db.Invoices.Create(newer); err != nil {
		t.Fatalf("Failed to create newer invoice: %v", err)
	}

	invoices, err := db.Invoices.GetAll("user-1")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	if len(invoices) != 2 {
		t.Fatalf("Expected 2 invoices, got %d", len(invoices))
	}
	if invoices[0].SourceMessageID != "msg-new" {
		t.Errorf("Expected newest purchase first, got %s", invoices[0].SourceMessageID)
	}
}

func TestInvoiceDelete(t *testing.T) {
	db := setupTestDB(t)

	invoice := sampleInvoice("user-1")
	if err := db.Invoices.Create(invoice); err != nil {
		t.Fatalf("Failed to create invoice: %v", err)
	}

	// Another user cannot delete it
	if err := db.Invoices.Delete("user-2", invoice.ID); err != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows for wrong user, got %v", err)
	}

	if err := db.Invoices.Delete("user-1", invoice.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := db.Invoices.Delete("user-1", invoice.ID); err != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows for second delete, got %v", err)
	}
}

func TestWarrantyFieldsMigration(t *testing.T) {
	db := setupTestDB(t)

	for _, column := range []string{"warranty_period_days", "category"} {
		var columnExists int
		err := db.QueryRow(`
			SELECT COUNT(*)
			FROM pragma_table_info('invoices')
			WHERE name = ?
		`, column).Scan(&columnExists)
		if err != nil {
			t.Fatalf("Failed to check %s column: %v", column, err)
		}
		if columnExists != 1 {
			t.Errorf("%s column should exist after migration", column)
		}
	}
}
