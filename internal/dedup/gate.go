package dedup

import (
	"fmt"
	"sync"

	"invoice-tracking/internal/database"
)

// Action is the outcome of pushing one invoice through the gate
type Action string

const (
	ActionInserted Action = "inserted"
	ActionSkipped  Action = "skipped"
	ActionUpdated  Action = "updated"
)

// Gate serializes persistence per dedup key so concurrent workers handling
// the same (user, message, attachment) cannot race each other into
// duplicate rows. Keys for distinct documents proceed in parallel.
type Gate struct {
	store *database.InvoiceStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGate creates a dedup gate over the invoice store
func NewGate(store *database.InvoiceStore) *Gate {
	return &Gate{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying invoice store for follow-up writes that
// are not subject to dedup (e.g. raw document blobs).
func (g *Gate) Store() *database.InvoiceStore {
	return g.store
}

func (g *Gate) keyLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	return lock
}

// Persist writes the invoice subject to dedup rules. An existing invoice
// under the same key is skipped when skipExisting is true, otherwise its
// parsed fields are replaced while the row identity (id, created_at) is
// preserved.
func (g *Gate) Persist(invoice *database.Invoice, skipExisting bool) (Action, error) {
	key := fmt.Sprintf("%s\x00%s\x00%s", invoice.UserID, invoice.SourceMessageID, invoice.AttachmentID)

	lock := g.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := g.store.GetBySourceKey(invoice.UserID, invoice.SourceMessageID, invoice.AttachmentID)
	if err != nil {
		return "", fmt.Errorf("dedup lookup failed: %w", err)
	}

	if existing == nil {
		if err := g.store.Create(invoice); err != nil {
			return "", fmt.Errorf("insert failed: %w", err)
		}
		return ActionInserted, nil
	}

	if skipExisting {
		// Surface the stored row so callers see what was kept
		*invoice = *existing
		return ActionSkipped, nil
	}

	invoice.ID = existing.ID
	invoice.CreatedAt = existing.CreatedAt
	if err := g.store.Update(invoice); err != nil {
		return "", fmt.Errorf("update failed: %w", err)
	}
	return ActionUpdated, nil
}
