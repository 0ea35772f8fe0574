package closures

import "context"

// Repository persists closure snapshots so a last-known-good set survives
// provider outages and process restarts.
type Repository interface {
	// SaveSnapshot replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LatestSnapshot retrieves the most recently stored snapshot.
	// Returns ErrNoSnapshot when nothing has been stored yet.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}
