package testutils

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/aretw0/proctrace/pkg/adapters/file"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/ports"
	"github.com/stretchr/testify/require"
)

// SetupWorkDir creates a temporary working directory and a file snapshot store rooted in it.
// It returns the absolute path to the directory and the store.
func SetupWorkDir(t *testing.T) (string, *file.Store) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	return absPath, file.New(absPath)
}

// Inline runs every submitted task on the caller's goroutine, so broadcasts are observable
// as soon as the registry call returns.
var Inline = ports.ExecutorFunc(func(task func()) bool {
	task()
	return true
})

// Broadcasts records every broadcast process in order.
type Broadcasts struct {
	mu     sync.Mutex
	topics []string
	events []*domain.Process
}

// Broadcast implements ports.Broadcaster.
func (b *Broadcasts) Broadcast(topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.events = append(b.events, payload.(*domain.Process))
}

// Topics returns the topics seen so far.
func (b *Broadcasts) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

// Last returns the most recent process, or nil.
func (b *Broadcasts) Last() *domain.Process {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

// Count returns the number of broadcasts.
func (b *Broadcasts) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
