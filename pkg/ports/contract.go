package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore implementation
// adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405")
	name := "SUBMIT/contract-" + suffix

	newSnapshot := func(status domain.Status) *domain.Process {
		start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		p := domain.NewProcess("key-"+suffix, domain.ProcessSubmit, start)
		p.Log.Append("Start Process:" + name)
		step := domain.NewStep("step-"+suffix, domain.StepCompile, start)
		step.Log.Append("compiling")
		step.Finish(domain.StatusFinished, start.Add(time.Second))
		p.Children = append(p.Children, step)
		p.LastUpdateStep = step
		p.Finish(status, start.Add(2*time.Second))
		return p
	}

	t.Run("Save and Load", func(t *testing.T) {
		snapshot := newSnapshot(domain.StatusFinished)

		err := store.Save(ctx, name, snapshot)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snapshot, loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, newSnapshot(domain.StatusFinished)))
		require.NoError(t, store.Save(ctx, name, newSnapshot(domain.StatusFailed)))

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, loaded.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, newSnapshot(domain.StatusFinished)))

		err := store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, name), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		name1 := name + "-1"
		name2 := "EXPLAIN/contract-" + suffix
		require.NoError(t, store.Save(ctx, name1, newSnapshot(domain.StatusFinished)))
		require.NoError(t, store.Save(ctx, name2, newSnapshot(domain.StatusFinished)))

		defer func() {
			_ = store.Delete(ctx, name1)
			_ = store.Delete(ctx, name2)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, name1)
		assert.Contains(t, names, name2)
	})
}
