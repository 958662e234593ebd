// Package vectorindex holds per-owner in-memory vector indices and the
// manager that loads, caches and persists them.
//
// Each owner entity (typically a character) has exactly one Index. An Index
// establishes its dimensionality from the first vector it receives and
// rejects any vector of a different length afterwards. Search is an exact
// linear cosine scan, which is adequate for the low thousands of entries a
// single owner accumulates.
package vectorindex

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// DefaultSearchLimit is used when Search is called with a non-positive limit.
const DefaultSearchLimit = 10

// Predicate filters entries by metadata before scoring.
type Predicate func(types.VectorMetadata) bool

// Hit is a single search result.
type Hit struct {
	ID       string
	Score    float64
	Metadata types.VectorMetadata
}

// Searcher is the read side of an index. Callers that only rank vectors
// depend on this so the linear scan can be swapped for an approximate
// structure.
type Searcher interface {
	Search(query []float32, limit int, pred Predicate) ([]Hit, error)
	Size() int
}

// Index is the vector collection of one owner entity. It is safe for
// concurrent use. Indices are obtained from a Manager, never constructed
// directly.
type Index struct {
	mu sync.RWMutex

	ownerEntityID string
	dimensions    int // 0 until the first vector is added
	entries       map[string]*types.VectorEntry

	// version counts mutations. savedVersion is the version last known to
	// be persisted; the index is dirty while they differ.
	version      int
	savedVersion int

	createdAt time.Time
	updatedAt time.Time
	now       func() time.Time
}

var _ Searcher = (*Index)(nil)

func newIndex(ownerEntityID string, now func() time.Time) *Index {
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	return &Index{
		ownerEntityID: ownerEntityID,
		entries:       make(map[string]*types.VectorEntry),
		createdAt:     t,
		updatedAt:     t,
		now:           now,
	}
}

// OwnerEntityID returns the entity this index belongs to.
func (x *Index) OwnerEntityID() string {
	return x.ownerEntityID
}

// AddVector inserts or replaces the entry with the given id. The first
// vector added fixes the index dimensionality.
func (x *Index) AddVector(id string, vector []float32, metadata types.VectorMetadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.checkDimensions(len(vector)); err != nil {
		return err
	}
	if x.dimensions == 0 {
		if len(vector) == 0 {
			return ErrEmptyVector
		}
		x.dimensions = len(vector)
	}

	createdAt := x.now().UTC()
	if existing, ok := x.entries[id]; ok {
		createdAt = existing.CreatedAt
	}
	metadata.Payload = slices.Clone(metadata.Payload)
	x.entries[id] = &types.VectorEntry{
		ID:        id,
		Vector:    slices.Clone(vector),
		Metadata:  metadata,
		CreatedAt: createdAt,
	}
	x.touch()
	return nil
}

// RemoveVector deletes the entry with the given id and reports whether it
// existed. The established dimensionality is kept even when the index
// becomes empty.
func (x *Index) RemoveVector(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[id]; !ok {
		return false
	}
	delete(x.entries, id)
	x.touch()
	return true
}

// UpdateVector replaces the vector of an existing entry, keeping its
// metadata. It returns false when id is unknown.
func (x *Index) UpdateVector(id string, vector []float32) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dimensions != 0 {
		if err := x.checkDimensions(len(vector)); err != nil {
			return false, err
		}
	}
	entry, ok := x.entries[id]
	if !ok {
		return false, nil
	}
	entry.Vector = slices.Clone(vector)
	x.touch()
	return true, nil
}

// HasVector reports whether an entry with the given id exists.
func (x *Index) HasVector(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[id]
	return ok
}

// Size returns the number of entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimensions returns the established dimensionality, or false when no
// vector has been added yet.
func (x *Index) Dimensions() (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimensions, x.dimensions != 0
}

// Version returns the mutation counter.
func (x *Index) Version() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.version
}

// IsDirty reports whether the index has mutations not yet persisted.
func (x *Index) IsDirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.version != x.savedVersion
}

// Search ranks entries by cosine similarity to query and returns at most
// limit hits, best first. Ties are ordered by id. pred, when non-nil,
// excludes entries before scoring.
func (x *Index) Search(query []float32, limit int, pred Predicate) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimensions == 0 {
		return []Hit{}, nil
	}
	if err := x.checkDimensions(len(query)); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(x.entries))
	for _, e := range x.entries {
		if pred != nil && !pred(e.Metadata) {
			continue
		}
		hits = append(hits, Hit{
			ID:       e.ID,
			Score:    CosineSimilarity(query, e.Vector),
			Metadata: e.Metadata,
		})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Snapshot returns a deep copy of the index suitable for persistence.
// Entries are ordered by id.
func (x *Index) Snapshot() *types.IndexSnapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()

	snap := &types.IndexSnapshot{
		OwnerEntityID: x.ownerEntityID,
		Version:       x.version,
		Dimensions:    x.dimensions,
		Entries:       make([]types.VectorEntry, 0, len(x.entries)),
		CreatedAt:     x.createdAt,
		UpdatedAt:     x.updatedAt,
	}
	for _, e := range x.entries {
		cp := *e
		cp.Vector = slices.Clone(e.Vector)
		cp.Metadata.Payload = slices.Clone(e.Metadata.Payload)
		snap.Entries = append(snap.Entries, cp)
	}
	slices.SortFunc(snap.Entries, func(a, b types.VectorEntry) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return snap
}

// restore replaces the index contents with snap and marks the index clean.
// Every entry must match the snapshot's dimensionality.
func (x *Index) restore(snap *types.IndexSnapshot) error {
	dims := snap.Dimensions
	if dims == 0 && len(snap.Entries) > 0 {
		dims = len(snap.Entries[0].Vector)
	}

	entries := make(map[string]*types.VectorEntry, len(snap.Entries))
	for i := range snap.Entries {
		e := snap.Entries[i]
		if len(e.Vector) != dims {
			return &DimensionMismatchError{OwnerEntityID: x.ownerEntityID, Expected: dims, Actual: len(e.Vector)}
		}
		e.Vector = slices.Clone(e.Vector)
		entries[e.ID] = &e
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.dimensions = dims
	x.entries = entries
	x.version = snap.Version
	x.savedVersion = snap.Version
	if !snap.CreatedAt.IsZero() {
		x.createdAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		x.updatedAt = snap.UpdatedAt
	}
	return nil
}

// markSaved records that the state at version has been persisted. A
// mutation that raced the save keeps the index dirty.
func (x *Index) markSaved(version int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if version > x.savedVersion {
		x.savedVersion = version
	}
}

// checkDimensions must be called with x.mu held.
func (x *Index) checkDimensions(n int) error {
	if x.dimensions != 0 && n != x.dimensions {
		return &DimensionMismatchError{OwnerEntityID: x.ownerEntityID, Expected: x.dimensions, Actual: n}
	}
	return nil
}

// touch must be called with x.mu held for writing.
func (x *Index) touch() {
	x.version++
	x.updatedAt = x.now().UTC()
}
