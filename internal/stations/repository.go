package stations

import "context"

// Repository persists snapshots.
type Repository interface {
	// Save stores a snapshot.
	Save(ctx context.Context, s *Snapshot) error

	// Latest returns the most recently fetched snapshot, or
	// ErrSnapshotNotFound when none is stored.
	Latest(ctx context.Context) (*Snapshot, error)

	// Get returns a snapshot by ID.
	Get(ctx context.Context, id string) (*Snapshot, error)

	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Prune deletes all but the newest keep snapshots and returns the number
	// removed.
	Prune(ctx context.Context, keep int) (int, error)
}

const defaultListLimit = 20

func listLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultListLimit
	}
	return limit
}
