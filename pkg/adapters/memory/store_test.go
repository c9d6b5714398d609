package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/proctrace/pkg/adapters/memory"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	p := domain.NewProcess("k", domain.ProcessSubmit, time.Now().UTC())
	p.Log.Append("saved")
	require.NoError(t, store.Save(ctx, "p", p))

	p.Log.Append("after save")

	loaded, err := store.Load(ctx, "p")
	require.NoError(t, err)
	assert.False(t, loaded.Log.Contains("after save"))

	loaded.Log.Append("after load")
	again, err := store.Load(ctx, "p")
	require.NoError(t, err)
	assert.False(t, again.Log.Contains("after load"))
}
