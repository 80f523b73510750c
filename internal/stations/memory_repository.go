package stations

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository keeps snapshots in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	snapshots []*Snapshot
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(_ context.Context, s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *s
	r.snapshots = append(r.snapshots, &cpy)
	sort.SliceStable(r.snapshots, func(i, j int) bool {
		return r.snapshots[i].FetchedAt.After(r.snapshots[j].FetchedAt)
	})
	return nil
}

func (r *InMemoryRepository) Latest(_ context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.snapshots) == 0 {
		return nil, ErrSnapshotNotFound
	}
	cpy := *r.snapshots[0]
	return &cpy, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.snapshots {
		if s.ID == id {
			cpy := *s
			return &cpy, nil
		}
	}
	return nil, ErrSnapshotNotFound
}

func (r *InMemoryRepository) List(_ context.Context, limit int) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit = listLimit(limit)
	out := make([]Summary, 0, min(limit, len(r.snapshots)))
	for _, s := range r.snapshots {
		if len(out) == limit {
			break
		}
		out = append(out, s.Summary())
	}
	return out, nil
}

func (r *InMemoryRepository) Prune(_ context.Context, keep int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(r.snapshots) <= keep {
		return 0, nil
	}
	removed := len(r.snapshots) - keep
	r.snapshots = r.snapshots[:keep]
	return removed, nil
}
