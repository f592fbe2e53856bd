package receipts

import (
	"context"
	"sort"
	"sync"

	"github.com/samuelarogbonlo/dot-escrow/internal/pagination"
)

// MemoryStore is an in-memory journal for demo/development mode.
type MemoryStore struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

func (m *MemoryStore) Record(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) ListByCaller(_ context.Context, caller string, limit int, cursor *pagination.Cursor) ([]*Entry, error) {
	result := m.filter(func(e *Entry) bool {
		return e.Caller == caller && cursor.Admits(e.CreatedAt, e.ID)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByEscrow(_ context.Context, escrowID string) ([]*Entry, error) {
	return m.filter(func(e *Entry) bool { return e.EscrowID == escrowID }), nil
}

func (m *MemoryStore) filter(keep func(*Entry) bool) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if keep(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return before(result[i], result[j]) })
	return result
}

var _ Store = (*MemoryStore)(nil)
