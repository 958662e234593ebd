package vectorindex

import (
	"context"
	"slices"
	"sync"

	"github.com/scrypster/recall/pkg/types"
)

// Persister stores index snapshots, one record per owner entity.
type Persister interface {
	// Load returns the stored snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context, ownerEntityID string) (*types.IndexSnapshot, error)

	// Save replaces the stored snapshot for ownerEntityID.
	Save(ctx context.Context, ownerEntityID string, snap *types.IndexSnapshot) error

	// Delete removes the stored snapshot and reports whether one existed.
	Delete(ctx context.Context, ownerEntityID string) (bool, error)
}

// MemoryPersister keeps snapshots in process memory. It backs the
// "memory" storage engine and tests.
type MemoryPersister struct {
	mu    sync.RWMutex
	snaps map[string]*types.IndexSnapshot
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{snaps: make(map[string]*types.IndexSnapshot)}
}

func (p *MemoryPersister) Load(_ context.Context, ownerEntityID string) (*types.IndexSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snaps[ownerEntityID]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(snap), nil
}

func (p *MemoryPersister) Save(_ context.Context, ownerEntityID string, snap *types.IndexSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps[ownerEntityID] = cloneSnapshot(snap)
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, ownerEntityID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.snaps[ownerEntityID]; !ok {
		return false, nil
	}
	delete(p.snaps, ownerEntityID)
	return true, nil
}

func cloneSnapshot(snap *types.IndexSnapshot) *types.IndexSnapshot {
	cp := *snap
	cp.Entries = make([]types.VectorEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		e.Vector = slices.Clone(e.Vector)
		e.Metadata.Payload = slices.Clone(e.Metadata.Payload)
		cp.Entries[i] = e
	}
	return &cp
}

var _ Persister = (*MemoryPersister)(nil)
