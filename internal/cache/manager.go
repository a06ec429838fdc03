package cache

import (
	"sync"
	"time"

	"invoice-tracking/internal/database"
	"invoice-tracking/internal/stats"
)

// DefaultTTL bounds how stale a served snapshot can be
const DefaultTTL = 120 * time.Second

// Snapshot is one materialized read view for a user. It is immutable once
// published; refreshes build a new snapshot and swap the reference.
type Snapshot struct {
	Invoices  []database.Invoice
	Stats     *stats.Stats
	Alerts    []stats.WarrantyAlert
	CreatedAt time.Time
}

// Age returns how long ago the snapshot was materialized
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.CreatedAt)
}

// Loader materializes a fresh snapshot for a user from the store
type Loader func(userID string) (*Snapshot, error)

type entry struct {
	mu       sync.Mutex // serializes refresh per user
	snapshot *Snapshot
}

// Manager holds at most one live snapshot per user and serves reads from
// it until the TTL lapses. Readers get an immutable reference; a refresh
// replaces the reference wholesale, never patches it.
type Manager struct {
	load     Loader
	ttl      time.Duration
	disabled bool

	entries sync.Map // map[string]*entry
}

// NewManager creates a cache manager over the given loader
func NewManager(load Loader, disabled bool, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		load:     load,
		ttl:      ttl,
		disabled: disabled,
	}
}

// Disabled reports whether caching is turned off; every read then hits
// the loader directly.
func (m *Manager) Disabled() bool {
	return m.disabled
}

func (m *Manager) entryFor(userID string) *entry {
	value, _ := m.entries.LoadOrStore(userID, &entry{})
	return value.(*entry)
}

// Get returns the user's live snapshot, or nil on a miss (no snapshot yet,
// TTL lapsed, or caching disabled). Get never reads the store.
func (m *Manager) Get(userID string) *Snapshot {
	if m.disabled {
		return nil
	}

	e := m.entryFor(userID)
	e.mu.Lock()
	snapshot := e.snapshot
	e.mu.Unlock()

	if snapshot == nil || snapshot.Age() > m.ttl {
		return nil
	}
	return snapshot
}

// Refresh materializes a new snapshot from the store and publishes it,
// regardless of the current snapshot's age.
func (m *Manager) Refresh(userID string) (*Snapshot, error) {
	snapshot, err := m.load(userID)
	if err != nil {
		return nil, err
	}

	if !m.disabled {
		e := m.entryFor(userID)
		e.mu.Lock()
		e.snapshot = snapshot
		e.mu.Unlock()
	}

	return snapshot, nil
}

// GetOrRefresh serves the live snapshot when fresh, otherwise re-reads
// the store. forceRefresh bypasses the TTL check entirely.
func (m *Manager) GetOrRefresh(userID string, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		if snapshot := m.Get(userID); snapshot != nil {
			return snapshot, nil
		}
	}
	return m.Refresh(userID)
}

// Invalidate drops the user's snapshot and reports the age of what was
// discarded, or false if there was nothing to discard. Callers invalidate
// after writes so the next read cannot serve pre-write state.
func (m *Manager) Invalidate(userID string) (time.Duration, bool) {
	if m.disabled {
		return 0, false
	}

	e := m.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snapshot == nil {
		return 0, false
	}
	age := e.snapshot.Age()
	e.snapshot = nil
	return age, true
}
