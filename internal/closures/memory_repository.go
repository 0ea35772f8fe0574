package closures

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewInMemoryRepository creates a new in-memory closure repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// SaveSnapshot replaces the stored snapshot.
func (r *InMemoryRepository) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *snap
	cpy.Closures = make([]Closure, len(snap.Closures))
	copy(cpy.Closures, snap.Closures)
	r.snap = &cpy
	return nil
}

// LatestSnapshot retrieves the stored snapshot.
func (r *InMemoryRepository) LatestSnapshot(_ context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.snap == nil {
		return nil, ErrNoSnapshot
	}

	cpy := *r.snap
	cpy.Closures = make([]Closure, len(r.snap.Closures))
	copy(cpy.Closures, r.snap.Closures)
	return &cpy, nil
}
