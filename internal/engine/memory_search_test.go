package engine

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

type searchFixture struct {
	store    *memStore
	manager  *vectorindex.Manager
	embedder *fakeEmbedder
	tasks    *TaskGroup
	service  *MemorySearchService
}

func newSearchFixture(t *testing.T, memories ...*types.Memory) *searchFixture {
	t.Helper()
	f := &searchFixture{
		store:    newMemStore(memories...),
		manager:  vectorindex.NewManager(vectorindex.NewMemoryPersister(), nil),
		embedder: &fakeEmbedder{vectors: map[string][]float32{}},
		tasks:    NewTaskGroup(0, nil),
	}
	f.service = NewMemorySearchService(f.store, f.manager, f.embedder, staticProfiles(), nil, f.tasks, SearchConfig{}, nil)
	t.Cleanup(func() { _ = f.tasks.Close(context.Background()) })
	return f
}

// index puts a vector for memory id into its owner's index.
func (f *searchFixture) index(t *testing.T, owner, id string, source types.MemorySource, vec []float32) {
	t.Helper()
	idx, err := f.manager.GetStore(context.Background(), owner)
	require.NoError(t, err)
	require.NoError(t, idx.AddVector(id, vec, types.VectorMetadata{MemoryID: id, OwnerEntityID: owner, Source: source}))
}

func ids(results []types.RankedMemory) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Memory.ID
	}
	return out
}

func TestSearch_EmbeddingPathRanksByCosine(t *testing.T) {
	f := newSearchFixture(t,
		mem("m1", "hero", "the dragon attacked the village", 0.5, types.SourceAuto),
		mem("m2", "hero", "we bought bread at the market", 0.5, types.SourceAuto),
		mem("m3", "hero", "the dragon sleeps in the mountain", 0.5, types.SourceAuto),
	)
	f.index(t, "hero", "m1", types.SourceAuto, []float32{1, 0, 0})
	f.index(t, "hero", "m2", types.SourceAuto, []float32{0, 1, 0})
	f.index(t, "hero", "m3", types.SourceAuto, []float32{0.8, 0.2, 0})
	f.embedder.vectors["dragon"] = []float32{1, 0, 0}

	resp, err := f.service.Search(context.Background(), "hero", "dragon", SearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.True(t, resp.UsedEmbedding)
	assert.Equal(t, []string{"m1", "m3"}, ids(resp.Results))
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestSearch_FallsBackWhenProviderReturns500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := newMemStore(
		mem("m1", "hero", "this is a test memory about swords", 0.5, types.SourceAuto),
		mem("m2", "hero", "nothing relevant here", 0.5, types.SourceAuto),
	)
	manager := vectorindex.NewManager(vectorindex.NewMemoryPersister(), nil)
	profiles := llm.StaticProfileResolver{Profile: &types.EmbeddingProfile{
		ID: "broken", Provider: types.ProviderOllama, BaseURL: srv.URL, ModelName: "nomic-embed-text",
	}}
	tasks := NewTaskGroup(0, nil)
	t.Cleanup(func() { _ = tasks.Close(context.Background()) })

	service := NewMemorySearchService(store, manager, llm.NewGenerator(llm.GeneratorConfig{}, nil), profiles, llm.EnvCredentialResolver{}, tasks, SearchConfig{}, nil)

	resp, err := service.Search(context.Background(), "hero", "test query", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.UsedEmbedding)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m1", resp.Results[0].Memory.ID)
}

func TestSearch_FallsBackWithoutProfile(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "the old friend waved", 0.5, types.SourceAuto))
	f.service.profiles = llm.ChainProfileResolver{}

	resp, err := f.service.Search(context.Background(), "hero", "friend", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.UsedEmbedding)
	assert.Equal(t, []string{"m1"}, ids(resp.Results))
	assert.Zero(t, f.embedder.calls)
}

func TestSearch_EmptyIndexUsesLexicalPath(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "a castle on the hill", 0.5, types.SourceAuto))
	f.embedder.vectors["castle"] = []float32{1, 0}

	var logs bytes.Buffer
	f.service.logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	resp, err := f.service.Search(context.Background(), "hero", "castle", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.UsedEmbedding)
	assert.Equal(t, []string{"m1"}, ids(resp.Results))
	assert.Contains(t, logs.String(), "level=INFO")
	assert.Contains(t, logs.String(), `reason="no vectors indexed"`)
}

func TestSearch_FiltersOnEmbeddingPath(t *testing.T) {
	f := newSearchFixture(t,
		mem("low", "hero", "low importance", 0.1, types.SourceAuto),
		mem("manual", "hero", "manual entry", 0.9, types.SourceManual),
		mem("far", "hero", "unrelated", 0.9, types.SourceAuto),
		mem("good", "hero", "good match", 0.9, types.SourceAuto),
	)
	f.index(t, "hero", "low", types.SourceAuto, []float32{1, 0})
	f.index(t, "hero", "manual", types.SourceManual, []float32{1, 0.1})
	f.index(t, "hero", "far", types.SourceAuto, []float32{0, 1})
	f.index(t, "hero", "good", types.SourceAuto, []float32{1, 0.2})
	f.embedder.vectors["q"] = []float32{1, 0}

	resp, err := f.service.Search(context.Background(), "hero", "q", SearchOptions{
		MinScore:      0.5,
		MinImportance: 0.5,
		SourceFilter:  []types.MemorySource{types.SourceAuto},
	})
	require.NoError(t, err)
	assert.True(t, resp.UsedEmbedding)
	assert.Equal(t, []string{"good"}, ids(resp.Results))
}

func TestSearch_SkipsHitsForMissingMemories(t *testing.T) {
	f := newSearchFixture(t, mem("kept", "hero", "still here", 0.5, types.SourceAuto))
	f.index(t, "hero", "gone", types.SourceAuto, []float32{1, 0})
	f.index(t, "hero", "kept", types.SourceAuto, []float32{0.9, 0.1})
	f.embedder.vectors["q"] = []float32{1, 0}

	resp, err := f.service.Search(context.Background(), "hero", "q", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids(resp.Results))
}

func TestSearch_DimensionMismatchPropagates(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "text", 0.5, types.SourceAuto))
	f.index(t, "hero", "m1", types.SourceAuto, []float32{1, 0, 0})
	f.embedder.vectors["q"] = []float32{1, 0}

	_, err := f.service.Search(context.Background(), "hero", "q", SearchOptions{})
	require.Error(t, err)
	assert.True(t, vectorindex.IsDimensionMismatch(err))
}

func TestSearch_MemoryStoreErrorPropagates(t *testing.T) {
	f := newSearchFixture(t)
	f.store.listErr = errBoom

	_, err := f.service.Search(context.Background(), "hero", "anything goes", SearchOptions{})
	assert.ErrorIs(t, err, errBoom)
}

func TestSearch_LexicalFiltersAndLimit(t *testing.T) {
	f := newSearchFixture(t,
		mem("a", "hero", "dragon dragon", 0.9, types.SourceAuto),
		mem("b", "hero", "dragon and knight", 0.2, types.SourceAuto),
		mem("c", "hero", "dragon knight castle", 0.8, types.SourceImport),
		mem("d", "hero", "no match at all", 0.9, types.SourceAuto),
		mem("e", "villain", "dragon knight castle", 0.9, types.SourceAuto),
	)

	resp, err := f.service.Search(context.Background(), "hero", "dragon knight castle", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.UsedEmbedding)
	assert.Equal(t, []string{"c", "b", "a"}, ids(resp.Results))

	resp, err = f.service.Search(context.Background(), "hero", "dragon knight castle", SearchOptions{
		MinImportance: 0.5,
		SourceFilter:  []types.MemorySource{types.SourceAuto},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(resp.Results))

	resp, err = f.service.Search(context.Background(), "hero", "dragon knight castle", SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(resp.Results))
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "the and of", 0.5, types.SourceAuto))

	resp, err := f.service.Search(context.Background(), "hero", "", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.UsedEmbedding)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearch_RequiresOwner(t *testing.T) {
	f := newSearchFixture(t)
	_, err := f.service.Search(context.Background(), "", "q", SearchOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearch_UpdatesAccessTimeInBackground(t *testing.T) {
	f := newSearchFixture(t,
		mem("m1", "hero", "sword fight", 0.5, types.SourceAuto),
		mem("m2", "hero", "quiet evening", 0.5, types.SourceAuto),
	)

	resp, err := f.service.Search(context.Background(), "hero", "sword", SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids(resp.Results))

	f.tasks.Wait()
	_, touched := f.store.accessedAt("m1")
	assert.True(t, touched)
	_, touched = f.store.accessedAt("m2")
	assert.False(t, touched)
}

func TestSearch_AccessTimeFailureDoesNotAffectResults(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "sword fight", 0.5, types.SourceAuto))
	f.store.accessErr = errBoom

	resp, err := f.service.Search(context.Background(), "hero", "sword", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	f.tasks.Wait()
}

func TestSearch_CallerCancellationDoesNotCancelAccessUpdate(t *testing.T) {
	f := newSearchFixture(t, mem("m1", "hero", "sword fight", 0.5, types.SourceAuto))

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := f.service.Search(ctx, "hero", "sword", SearchOptions{})
	cancel()
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	f.tasks.Wait()
	_, touched := f.store.accessedAt("m1")
	assert.True(t, touched)
}

func TestSearch_NormalizeLimit(t *testing.T) {
	s := NewMemorySearchService(newMemStore(), nil, nil, nil, nil, nil, SearchConfig{DefaultLimit: 5, MaxLimit: 20}, nil)
	assert.Equal(t, 5, s.normalizeLimit(0))
	assert.Equal(t, 5, s.normalizeLimit(-3))
	assert.Equal(t, 7, s.normalizeLimit(7))
	assert.Equal(t, 20, s.normalizeLimit(500))
}
