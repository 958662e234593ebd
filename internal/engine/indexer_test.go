package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

func newIndexerFixture(t *testing.T, memories ...*types.Memory) (*Indexer, *memStore, *vectorindex.Manager, *vectorindex.MemoryPersister, *fakeEmbedder) {
	t.Helper()
	store := newMemStore(memories...)
	persister := vectorindex.NewMemoryPersister()
	manager := vectorindex.NewManager(persister, nil)
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	return NewIndexer(store, manager, embedder, staticProfiles(), nil, nil), store, manager, persister, embedder
}

func TestIndexer_IndexMemoryThenSearch(t *testing.T) {
	m := mem("m1", "hero", "the blacksmith forged a blade", 0.5, types.SourceManual)
	ix, store, manager, _, embedder := newIndexerFixture(t, m)
	embedder.vectors[m.Content] = []float32{0.2, 0.9}
	embedder.vectors["blade"] = []float32{0.2, 0.9}

	require.NoError(t, ix.IndexMemory(context.Background(), "user", m))

	idx, err := manager.GetStore(context.Background(), "hero")
	require.NoError(t, err)
	assert.True(t, idx.HasVector("m1"))

	tasks := NewTaskGroup(0, nil)
	t.Cleanup(func() { _ = tasks.Close(context.Background()) })
	service := NewMemorySearchService(store, manager, embedder, staticProfiles(), nil, tasks, SearchConfig{}, nil)

	resp, err := service.Search(context.Background(), "hero", "blade", SearchOptions{SourceFilter: []types.MemorySource{types.SourceManual}})
	require.NoError(t, err)
	assert.True(t, resp.UsedEmbedding)
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
}

func TestIndexer_IndexMemoryErrors(t *testing.T) {
	ix, _, _, _, _ := newIndexerFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, ix.IndexMemory(ctx, "u", nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, ix.IndexMemory(ctx, "u", &types.Memory{ID: "x"}), storage.ErrInvalidInput)

	err := ix.IndexMemory(ctx, "u", mem("m1", "hero", "not embeddable", 0.5, types.SourceAuto))
	assert.True(t, llm.IsProviderError(err))

	ix.profiles = llm.ChainProfileResolver{}
	err = ix.IndexMemory(ctx, "u", mem("m1", "hero", "x", 0.5, types.SourceAuto))
	assert.True(t, llm.IsConfigurationError(err))
}

func TestIndexer_RemoveMemory(t *testing.T) {
	m := mem("m1", "hero", "text", 0.5, types.SourceAuto)
	ix, _, _, _, embedder := newIndexerFixture(t, m)
	embedder.vectors["text"] = []float32{1}
	require.NoError(t, ix.IndexMemory(context.Background(), "u", m))

	removed, err := ix.RemoveMemory(context.Background(), "hero", "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = ix.RemoveMemory(context.Background(), "hero", "m1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIndexer_RebuildCountsFailures(t *testing.T) {
	ix, _, manager, persister, embedder := newIndexerFixture(t,
		mem("m1", "hero", "one", 0.5, types.SourceAuto),
		mem("m2", "hero", "two", 0.5, types.SourceAuto),
		mem("m3", "hero", "three", 0.5, types.SourceAuto),
	)
	embedder.vectors["one"] = []float32{1, 0}
	embedder.vectors["three"] = []float32{0, 1}

	// A stale vector that no longer corresponds to any memory.
	idx, err := manager.GetStore(context.Background(), "hero")
	require.NoError(t, err)
	require.NoError(t, idx.AddVector("stale", []float32{1, 1}, types.VectorMetadata{MemoryID: "stale", OwnerEntityID: "hero"}))
	require.NoError(t, manager.SaveStore(context.Background(), "hero"))

	report, err := ix.Rebuild(context.Background(), "u", "hero")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"m2"}, report.FailedIDs)
	assert.Equal(t, 2, report.Dimensions)

	snap, err := persister.Load(context.Background(), "hero")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Entries, 2)
	for _, e := range snap.Entries {
		assert.NotEqual(t, "stale", e.ID)
	}
}

func TestIndexer_RebuildAbortsOnDimensionMismatch(t *testing.T) {
	ix, _, _, _, embedder := newIndexerFixture(t,
		mem("m1", "hero", "one", 0.5, types.SourceAuto),
		mem("m2", "hero", "two", 0.5, types.SourceAuto),
	)
	embedder.vectors["one"] = []float32{1, 0}
	embedder.vectors["two"] = []float32{1, 0, 0}

	_, err := ix.Rebuild(context.Background(), "u", "hero")
	assert.True(t, vectorindex.IsDimensionMismatch(err))
}

func TestIndexer_RebuildWithoutProfileKeepsIndex(t *testing.T) {
	m := mem("m1", "hero", "one", 0.5, types.SourceAuto)
	ix, _, manager, _, embedder := newIndexerFixture(t, m)
	embedder.vectors["one"] = []float32{1, 0}
	require.NoError(t, ix.IndexMemory(context.Background(), "u", m))

	ix.profiles = llm.ChainProfileResolver{}
	_, err := ix.Rebuild(context.Background(), "u", "hero")
	require.Error(t, err)

	idx, err := manager.GetStore(context.Background(), "hero")
	require.NoError(t, err)
	assert.True(t, idx.HasVector("m1"))
}

func TestIndexer_DeleteOwner(t *testing.T) {
	m := mem("m1", "hero", "one", 0.5, types.SourceAuto)
	ix, _, manager, _, embedder := newIndexerFixture(t, m)
	embedder.vectors["one"] = []float32{1, 0}
	require.NoError(t, ix.IndexMemory(context.Background(), "u", m))
	require.NoError(t, manager.SaveAll(context.Background()))

	deleted, err := ix.DeleteOwner(context.Background(), "hero")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = ix.DeleteOwner(context.Background(), "hero")
	require.NoError(t, err)
	assert.False(t, deleted)

	idx, err := manager.GetStore(context.Background(), "hero")
	require.NoError(t, err)
	assert.Zero(t, idx.Size())
}
