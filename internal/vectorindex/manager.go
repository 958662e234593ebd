package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrOwnerRequired is returned when an empty owner entity id is passed.
var ErrOwnerRequired = errors.New("owner entity id is required")

// Stats is a point-in-time view of the manager cache.
type Stats struct {
	LoadedStores int `json:"loadedStores"`
	TotalVectors int `json:"totalVectors"`
	DirtyStores  int `json:"dirtyStores"`
}

// Manager caches one Index per owner entity, loading it from the Persister
// on first access and writing it back on save. It is the only way an Index
// enters memory.
type Manager struct {
	persister Persister
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	stores map[string]*Index

	// owners serialises persister calls per owner. Loads, saves and deletes
	// of one owner never overlap, so a delete cannot be undone by a save or
	// load that started before it. Entries exist only while held.
	owners map[string]*ownerLock

	loads singleflight.Group
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager over persister. A nil logger uses
// slog.Default().
func NewManager(persister Persister, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		persister: persister,
		logger:    logger.With("component", "vectorindex"),
		now:       time.Now,
		stores:    make(map[string]*Index),
		owners:    make(map[string]*ownerLock),
	}
}

// GetStore returns the cached index for ownerEntityID, loading it from
// storage on first access. A missing snapshot yields an empty index.
// Concurrent first accesses share one load.
func (m *Manager) GetStore(ctx context.Context, ownerEntityID string) (*Index, error) {
	if ownerEntityID == "" {
		return nil, ErrOwnerRequired
	}

	m.mu.Lock()
	if idx, ok := m.stores[ownerEntityID]; ok {
		m.mu.Unlock()
		return idx, nil
	}
	m.mu.Unlock()

	v, err, _ := m.loads.Do(ownerEntityID, func() (interface{}, error) {
		return m.load(ctx, ownerEntityID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Searcher is GetStore narrowed to the read side.
func (m *Manager) Searcher(ctx context.Context, ownerEntityID string) (Searcher, error) {
	idx, err := m.GetStore(ctx, ownerEntityID)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (m *Manager) load(ctx context.Context, ownerEntityID string) (*Index, error) {
	unlock := m.lockOwner(ownerEntityID)
	defer unlock()

	m.mu.Lock()
	existing, ok := m.stores[ownerEntityID]
	m.mu.Unlock()
	if ok {
		return existing, nil
	}

	idx := newIndex(ownerEntityID, m.now)

	snap, err := m.persister.Load(ctx, ownerEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector index %q: %w", ownerEntityID, err)
	}
	if snap != nil {
		if err := idx.restore(snap); err != nil {
			return nil, fmt.Errorf("failed to restore vector index %q: %w", ownerEntityID, err)
		}
		m.logger.Debug("vector index loaded", "owner", ownerEntityID, "vectors", len(snap.Entries), "dimensions", snap.Dimensions)
	} else {
		m.logger.Debug("vector index created", "owner", ownerEntityID)
	}

	m.mu.Lock()
	m.stores[ownerEntityID] = idx
	m.mu.Unlock()
	return idx, nil
}

// SaveStore persists the cached index for ownerEntityID. It does nothing
// when the index is not loaded, or is clean and empty. On failure the index
// stays dirty so a later save retries it.
func (m *Manager) SaveStore(ctx context.Context, ownerEntityID string) error {
	m.mu.Lock()
	idx, ok := m.stores[ownerEntityID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if !idx.IsDirty() && idx.Size() == 0 {
		return nil
	}
	return m.save(ctx, idx)
}

// SaveAll persists every cached index with pending mutations. All indices
// are attempted; the returned error joins the individual failures.
func (m *Manager) SaveAll(ctx context.Context) error {
	var errs []error
	for _, idx := range m.loaded() {
		if !idx.IsDirty() {
			continue
		}
		if err := m.save(ctx, idx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// save writes idx unless it has been unloaded or deleted in the meantime.
func (m *Manager) save(ctx context.Context, idx *Index) error {
	owner := idx.OwnerEntityID()
	unlock := m.lockOwner(owner)
	defer unlock()

	m.mu.Lock()
	current := m.stores[owner]
	m.mu.Unlock()
	if current != idx {
		m.logger.Debug("vector index no longer cached, skipping save", "owner", owner)
		return nil
	}

	snap := idx.Snapshot()
	if err := m.persister.Save(ctx, idx.OwnerEntityID(), snap); err != nil {
		return fmt.Errorf("failed to save vector index %q: %w", idx.OwnerEntityID(), err)
	}
	idx.markSaved(snap.Version)
	m.logger.Debug("vector index saved", "owner", idx.OwnerEntityID(), "vectors", len(snap.Entries), "version", snap.Version)
	return nil
}

// UnloadStore evicts the index from memory without touching storage and
// reports whether it was loaded. Unsaved mutations are lost.
func (m *Manager) UnloadStore(ownerEntityID string) bool {
	m.mu.Lock()
	idx, ok := m.stores[ownerEntityID]
	delete(m.stores, ownerEntityID)
	m.mu.Unlock()

	if ok && idx.IsDirty() {
		m.logger.Warn("unloading vector index with unsaved changes", "owner", ownerEntityID)
	}
	return ok
}

// DeleteStore evicts the index and removes its persisted record. It reports
// whether anything existed, in memory or in storage. This cannot be undone.
func (m *Manager) DeleteStore(ctx context.Context, ownerEntityID string) (bool, error) {
	if ownerEntityID == "" {
		return false, ErrOwnerRequired
	}

	unlock := m.lockOwner(ownerEntityID)
	defer unlock()

	m.mu.Lock()
	_, cached := m.stores[ownerEntityID]
	delete(m.stores, ownerEntityID)
	m.mu.Unlock()

	deleted, err := m.persister.Delete(ctx, ownerEntityID)
	if err != nil {
		return cached, fmt.Errorf("failed to delete vector index %q: %w", ownerEntityID, err)
	}

	if cached || deleted {
		m.logger.Info("vector index deleted", "owner", ownerEntityID)
	}
	return cached || deleted, nil
}

// Stats reports how many indices are loaded and how many vectors they hold.
func (m *Manager) Stats() Stats {
	var s Stats
	for _, idx := range m.loaded() {
		s.LoadedStores++
		s.TotalVectors += idx.Size()
		if idx.IsDirty() {
			s.DirtyStores++
		}
	}
	return s
}

// lockOwner acquires the persistence lock for ownerEntityID and returns
// its release function.
func (m *Manager) lockOwner(ownerEntityID string) func() {
	m.mu.Lock()
	l, ok := m.owners[ownerEntityID]
	if !ok {
		l = &ownerLock{}
		m.owners[ownerEntityID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.owners, ownerEntityID)
		}
		m.mu.Unlock()
	}
}

// loaded returns the cached indices ordered by owner id.
func (m *Manager) loaded() []*Index {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Index, 0, len(m.stores))
	for _, idx := range m.stores {
		out = append(out, idx)
	}
	slices.SortFunc(out, func(a, b *Index) int {
		switch {
		case a.ownerEntityID < b.ownerEntityID:
			return -1
		case a.ownerEntityID > b.ownerEntityID:
			return 1
		}
		return 0
	})
	return out
}
