package cache

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"invoice-tracking/internal/database"
	"invoice-tracking/internal/stats"
)

func countingLoader(loads *int64) Loader {
	return func(userID string) (*Snapshot, error) {
		n := atomic.AddInt64(loads, 1)
		return &Snapshot{
			Invoices:  []database.Invoice{{ID: fmt.Sprintf("inv-%d", n), UserID: userID}},
			Stats:     &stats.Stats{TotalCount: int(n)},
			CreatedAt: time.Now(),
		}, nil
	}
}

func TestGetMissesBeforeFirstRefresh(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, time.Minute)

	if snapshot := m.Get("user-1"); snapshot != nil {
		t.Errorf("Expected miss before first refresh, got %+v", snapshot)
	}
	if loads != 0 {
		t.Errorf("Get must never hit the loader, got %d loads", loads)
	}
}

func TestGetOrRefreshServesCachedSnapshot(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, time.Minute)

	first, err := m.GetOrRefresh("user-1", false)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}

	second, err := m.GetOrRefresh("user-1", false)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}

	if loads != 1 {
		t.Errorf("Expected 1 load, got %d", loads)
	}
	if first != second {
		t.Error("Second read should serve the same snapshot reference")
	}
}

func TestForceRefreshBypassesTTL(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, time.Minute)

	if _, err := m.GetOrRefresh("user-1", false); err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if _, err := m.GetOrRefresh("user-1", true); err != nil {
		t.Fatalf("Forced GetOrRefresh failed: %v", err)
	}

	if loads != 2 {
		t.Errorf("Expected 2 loads with forceRefresh, got %d", loads)
	}
}

func TestTTLExpiryCausesReload(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, 10*time.Millisecond)

	if _, err := m.GetOrRefresh("user-1", false); err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if snapshot := m.Get("user-1"); snapshot != nil {
		t.Error("Expected miss after TTL expiry")
	}
	if _, err := m.GetOrRefresh("user-1", false); err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if loads != 2 {
		t.Errorf("Expected reload after TTL expiry, got %d loads", loads)
	}
}

func TestInvalidateDropsSnapshot(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, time.Minute)

	if _, err := m.GetOrRefresh("user-1", false); err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}

	age, dropped := m.Invalidate("user-1")
	if !dropped {
		t.Fatal("Expected a snapshot to be dropped")
	}
	if age < 0 {
		t.Errorf("Expected non-negative age, got %v", age)
	}

	if snapshot := m.Get("user-1"); snapshot != nil {
		t.Error("Expected miss after invalidation")
	}

	// Nothing left to invalidate
	if _, dropped := m.Invalidate("user-1"); dropped {
		t.Error("Second invalidation should report nothing dropped")
	}
}

func TestSnapshotsAreScopedPerUser(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), false, time.Minute)

	a, err := m.GetOrRefresh("user-a", false)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	b, err := m.GetOrRefresh("user-b", false)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}

	if a == b {
		t.Error("Users must not share snapshots")
	}
	if loads != 2 {
		t.Errorf("Expected one load per user, got %d", loads)
	}

	m.Invalidate("user-a")
	if m.Get("user-b") == nil {
		t.Error("Invalidating one user must not drop another user's snapshot")
	}
}

func TestDisabledCacheAlwaysLoads(t *testing.T) {
	var loads int64
	m := NewManager(countingLoader(&loads), true, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := m.GetOrRefresh("user-1", false); err != nil {
			t.Fatalf("GetOrRefresh failed: %v", err)
		}
	}

	if loads != 3 {
		t.Errorf("Disabled cache should load every time, got %d loads", loads)
	}
	if m.Get("user-1") != nil {
		t.Error("Disabled cache should always miss")
	}
}
