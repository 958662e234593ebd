package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// openTestDB connects to RECALL_TEST_POSTGRES_DSN or skips the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("RECALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RECALL_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testOwner returns an owner id unique to this run so tests can share a database.
func testOwner(t *testing.T) string {
	return t.Name() + "-" + uuid.NewString()
}

func TestMemoryStore_Postgres(t *testing.T) {
	db := openTestDB(t)
	store := NewMemoryStoreFromDB(db)
	ctx := context.Background()
	owner := testOwner(t)

	mem := &types.Memory{OwnerEntityID: owner, Content: "met the blacksmith", Keywords: []string{"blacksmith"}}
	require.NoError(t, store.Store(ctx, mem))
	t.Cleanup(func() { _ = store.Delete(context.Background(), mem.ID) })

	got, err := store.FindByID(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"blacksmith"}, got.Keywords)

	list, err := store.FindByOwnerEntity(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.UpdateAccessTime(ctx, owner, mem.ID, at))
	assert.ErrorIs(t, store.UpdateAccessTime(ctx, "someone-else", mem.ID, at), storage.ErrNotFound)
}

func TestProfileStore_Postgres(t *testing.T) {
	db := openTestDB(t)
	profiles := NewProfileStore(db)
	ctx := context.Background()
	owner := testOwner(t)

	a := &types.EmbeddingProfile{OwnerID: owner, Provider: types.ProviderOllama, ModelName: "nomic-embed-text", IsDefault: true}
	b := &types.EmbeddingProfile{OwnerID: owner, Provider: types.ProviderOpenAI, ModelName: "text-embedding-3-small", IsDefault: true}
	require.NoError(t, profiles.SaveProfile(ctx, a))
	require.NoError(t, profiles.SaveProfile(ctx, b))

	def, err := profiles.GetDefaultProfile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	list, err := profiles.ListProfiles(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIndexStore_Postgres(t *testing.T) {
	db := openTestDB(t)
	persister := NewIndexStore(db)
	ctx := context.Background()
	owner := testOwner(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, persister.Save(ctx, owner, &types.IndexSnapshot{
		OwnerEntityID: owner,
		Version:       2,
		Dimensions:    3,
		CreatedAt:     now,
		UpdatedAt:     now,
		Entries: []types.VectorEntry{
			{ID: "m1", Vector: []float32{0.5, -1, 2}, Metadata: types.VectorMetadata{MemoryID: "m1", OwnerEntityID: owner}, CreatedAt: now},
		},
	}))

	snap, err := persister.Load(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, []float32{0.5, -1, 2}, snap.Entries[0].Vector)

	deleted, err := persister.Delete(ctx, owner)
	require.NoError(t, err)
	assert.True(t, deleted)

	snap, err = persister.Load(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
