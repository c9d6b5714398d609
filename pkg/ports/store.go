package ports

import (
	"context"

	"github.com/aretw0/proctrace/pkg/domain"
)

// SnapshotStore persists the snapshot of a process once it reaches a terminal state.
// Snapshots are keyed by process name; saving a name twice overwrites the first snapshot.
type SnapshotStore interface {
	// Save persists the snapshot for a given process name.
	Save(ctx context.Context, processName string, process *domain.Process) error

	// Load retrieves the snapshot for a given process name.
	// Returns domain.ErrSnapshotNotFound if no snapshot exists.
	Load(ctx context.Context, processName string) (*domain.Process, error)

	// Delete removes the snapshot for a given process name. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, processName string) error

	// List returns the names of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}
