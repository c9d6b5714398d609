package memory

import (
	"context"
	"sync"

	"github.com/aretw0/proctrace/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Process
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Process),
	}
}

// Save keeps a deep copy of the snapshot, mirroring the isolation a serialising store gives.
func (s *Store) Save(ctx context.Context, processName string, process *domain.Process) error {
	cp := process.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[processName] = cp
	return nil
}

// Load returns a copy so callers cannot mutate the stored snapshot.
func (s *Store) Load(ctx context.Context, processName string) (*domain.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	process, ok := s.data[processName]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return process.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, processName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, processName)
	return nil
}

// List returns the names of stored snapshots.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	return names, nil
}
