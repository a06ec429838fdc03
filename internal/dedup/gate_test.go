package dedup

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"invoice-tracking/internal/database"
)

func setupGate(t *testing.T) (*Gate, *database.DB) {
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	t.Cleanup(func() {
		os.Remove(tmpfile.Name())
	})

	db, err := database.Open(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	return NewGate(db.Invoices), db
}

func gateInvoice(messageID string) *database.Invoice {
	purchaseDate := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	return &database.Invoice{
		UserID:          "user-1",
		SourceMessageID: messageID,
		AttachmentID:    "att-1",
		Vendor:          "Amazon",
		PurchaseDate:    &purchaseDate,
		Amount:          999.00,
		Currency:        "INR",
		Confidence:      0.8,
	}
}

func TestPersistInsertsNewInvoice(t *testing.T) {
	gate, _ := setupGate(t)

	action, err := gate.Persist(gateInvoice("msg-1"), true)
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if action != ActionInserted {
		t.Errorf("Expected inserted, got %s", action)
	}
}

func TestPersistSkipsExisting(t *testing.T) {
	gate, db := setupGate(t)

	first := gateInvoice("msg-1")
	if _, err := gate.Persist(first, true); err != nil {
		t.Fatalf("First persist failed: %v", err)
	}

	second := gateInvoice("msg-1")
	second.Amount = 1099.00
	action, err := gate.Persist(second, true)
	if err != nil {
		t.Fatalf("Second persist failed: %v", err)
	}
	if action != ActionSkipped {
		t.Errorf("Expected skipped, got %s", action)
	}

	// Stored row is unchanged
	got, err := db.Invoices.GetByID("user-1", first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Amount != 999.00 {
		t.Errorf("Skip should not modify stored amount, got %f", got.Amount)
	}
	// Caller sees the stored row
	if second.ID != first.ID || second.Amount != 999.00 {
		t.Errorf("Skipped persist should surface stored row, got %+v", second)
	}
}

func TestPersistUpdatesExisting(t *testing.T) {
	gate, db := setupGate(t)

	first := gateInvoice("msg-1")
	if _, err := gate.Persist(first, true); err != nil {
		t.Fatalf("First persist failed: %v", err)
	}

	second := gateInvoice("msg-1")
	second.Amount = 1099.00
	second.Vendor = "Amazon India"
	action, err := gate.Persist(second, false)
	if err != nil {
		t.Fatalf("Update persist failed: %v", err)
	}
	if action != ActionUpdated {
		t.Errorf("Expected updated, got %s", action)
	}

	if second.ID != first.ID {
		t.Errorf("Update must preserve invoice ID: %s vs %s", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Update must preserve CreatedAt")
	}

	got, err := db.Invoices.GetByID("user-1", first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Amount != 1099.00 || got.Vendor != "Amazon India" {
		t.Errorf("Expected updated fields, got %+v", got)
	}

	count, err := db.Invoices.CountByUser("user-1")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after update, got %d", count)
	}
}

func TestPersistConcurrentSameKey(t *testing.T) {
	gate, db := setupGate(t)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	actions := make(map[Action]int)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			action, err := gate.Persist(gateInvoice("msg-race"), true)
			if err != nil {
				t.Errorf("Concurrent persist failed: %v", err)
				return
			}
			mu.Lock()
			actions[action]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if actions[ActionInserted] != 1 {
		t.Errorf("Expected exactly 1 insert, got %d", actions[ActionInserted])
	}
	if actions[ActionSkipped] != workers-1 {
		t.Errorf("Expected %d skips, got %d", workers-1, actions[ActionSkipped])
	}

	count, err := db.Invoices.CountByUser("user-1")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after concurrent persists, got %d", count)
	}
}

func TestPersistDistinctKeysAllInsert(t *testing.T) {
	gate, db := setupGate(t)

	for i := 0; i < 5; i++ {
		invoice := gateInvoice(fmt.Sprintf("msg-%d", i))
		action, err := gate.Persist(invoice, true)
		if err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
		if action != ActionInserted {
			t.Errorf("Expected inserted for msg-%d, got %s", i, action)
		}
	}

	count, err := db.Invoices.CountByUser("user-1")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 rows, got %d", count)
	}
}
