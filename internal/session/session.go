// Package session keeps open carts between requests, keyed by a client
// chosen session id.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"dukaan/backend/internal/cart"
	"dukaan/backend/internal/domain"
)

// Store persists cart snapshots. Load reports false for an unknown or expired
// session. Save refreshes the expiry.
type Store interface {
	Load(ctx context.Context, id string) (cart.Snapshot, bool, error)
	Save(ctx context.Context, id string, snapshot cart.Snapshot) error
	Delete(ctx context.Context, id string) error
}

// ValidateID rejects ids that cannot be used as a storage key.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invalid("session id is required")
	}
	if len(id) > 128 {
		return domain.Invalid("session id is too long")
	}
	return nil
}

type memoryEntry struct {
	snapshot  cart.Snapshot
	expiresAt time.Time
}

// MemoryStore is the single-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (cart.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return cart.Snapshot{}, false, nil
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return cart.Snapshot{}, false, nil
	}
	return cart.FromSnapshot(e.snapshot).Snapshot(), true, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, snapshot cart.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = memoryEntry{
		snapshot:  cart.FromSnapshot(snapshot).Snapshot(),
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
