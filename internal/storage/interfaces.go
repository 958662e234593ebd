// Package storage defines the persistence contracts the retrieval subsystem
// consumes, plus helpers shared by the SQL backends.
//
// Interfaces are kept small so each backend implements only what it
// supports: a deployment may keep memories in one place and vector indices
// in another.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// MemoryReader is what memory retrieval needs from memory storage.
type MemoryReader interface {
	// FindByOwnerEntity returns every memory of the owner entity, unranked.
	FindByOwnerEntity(ctx context.Context, ownerEntityID string) ([]*types.Memory, error)

	// FindByID returns a memory or ErrNotFound.
	FindByID(ctx context.Context, id string) (*types.Memory, error)

	// UpdateAccessTime sets last_accessed_at for one memory of the owner.
	// Returns ErrNotFound if the memory does not belong to the owner.
	UpdateAccessTime(ctx context.Context, ownerEntityID, memoryID string, at time.Time) error
}

// MemoryStore adds the write side used by indexing hooks and tooling.
type MemoryStore interface {
	MemoryReader

	// Store creates or updates a memory (upsert semantics). An empty ID is
	// assigned a new one.
	Store(ctx context.Context, memory *types.Memory) error

	// Delete removes a memory. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// ProfileStore manages embedding profiles.
type ProfileStore interface {
	// SaveProfile upserts a profile. Saving a default profile clears the
	// default flag on the owner's other profiles.
	SaveProfile(ctx context.Context, profile *types.EmbeddingProfile) error

	// GetProfile returns a profile by ID or ErrNotFound.
	GetProfile(ctx context.Context, id string) (*types.EmbeddingProfile, error)

	// GetDefaultProfile returns the owner's default profile or ErrNotFound.
	GetDefaultProfile(ctx context.Context, ownerID string) (*types.EmbeddingProfile, error)

	// ListProfiles returns all profiles of an owner.
	ListProfiles(ctx context.Context, ownerID string) ([]*types.EmbeddingProfile, error)
}
