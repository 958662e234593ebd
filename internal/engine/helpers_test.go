package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// memStore is an in-memory storage.MemoryReader.
type memStore struct {
	mu        sync.Mutex
	memories  map[string]*types.Memory
	accessed  map[string]time.Time
	listErr   error
	accessErr error
}

func newMemStore(memories ...*types.Memory) *memStore {
	s := &memStore{memories: map[string]*types.Memory{}, accessed: map[string]time.Time{}}
	for _, m := range memories {
		s.memories[m.ID] = m
	}
	return s
}

func (s *memStore) FindByOwnerEntity(_ context.Context, ownerEntityID string) ([]*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*types.Memory
	for _, m := range s.memories {
		if m.OwnerEntityID == ownerEntityID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateAccessTime(_ context.Context, ownerEntityID, memoryID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessErr != nil {
		return s.accessErr
	}
	m, ok := s.memories[memoryID]
	if !ok || m.OwnerEntityID != ownerEntityID {
		return storage.ErrNotFound
	}
	s.accessed[memoryID] = at
	return nil
}

func (s *memStore) accessedAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.accessed[id]
	return at, ok
}

// fakeEmbedder maps texts to vectors; unknown texts fail with a provider error.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Generate(_ context.Context, text string, profile *types.EmbeddingProfile, _ llm.CredentialResolver) (*types.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	v, ok := f.vectors[text]
	if !ok {
		return nil, &llm.ProviderError{Provider: profile.Provider, StatusCode: 500, Message: "unknown text"}
	}
	return &types.EmbeddingResult{Vector: v, Dimensions: len(v), Provider: profile.Provider, Model: profile.ModelName}, nil
}

var testProfile = &types.EmbeddingProfile{ID: "test", Provider: types.ProviderOllama, ModelName: "fake"}

func staticProfiles() llm.ProfileResolver {
	return llm.StaticProfileResolver{Profile: testProfile}
}

var errBoom = errors.New("boom")

func mem(id, owner, content string, importance float64, source types.MemorySource) *types.Memory {
	return &types.Memory{
		ID:            id,
		OwnerEntityID: owner,
		Content:       content,
		Importance:    importance,
		Source:        source,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
