package position

import (
	"context"
	"sort"
	"sync"

	"optionsBot/internal/domain"
)

// MemoryStore is a process-local PositionStore. It is the default when no
// durable store is configured and is cleared only by Delete.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string]*domain.Position)}
}

// Save upserts a copy of pos.
func (s *MemoryStore) Save(_ context.Context, pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ID] = pos.Clone()
	return nil
}

// LoadActive returns active snapshots, newest entry first.
func (s *MemoryStore) LoadActive(_ context.Context) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Position
	for _, p := range s.positions {
		if p.Status.IsActive() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return out, nil
}

// Delete removes a snapshot.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	return nil
}
