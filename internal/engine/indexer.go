package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

// RebuildReport summarises an index rebuild.
type RebuildReport struct {
	OwnerEntityID string        `json:"ownerEntityId"`
	Total         int           `json:"total"`
	Indexed       int           `json:"indexed"`
	Failed        int           `json:"failed"`
	FailedIDs     []string      `json:"failedIds,omitempty"`
	Dimensions    int           `json:"dimensions"`
	Duration      time.Duration `json:"duration"`
}

// Indexer keeps owner indices in step with memory lifecycle events. Callers
// invoke it when memories are created, updated or deleted and when an owner
// entity is deleted.
type Indexer struct {
	memories storage.MemoryReader
	indices  *vectorindex.Manager
	embedder EmbeddingGenerator
	profiles llm.ProfileResolver
	creds    llm.CredentialResolver
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. A nil logger uses slog.Default().
func NewIndexer(
	memories storage.MemoryReader,
	indices *vectorindex.Manager,
	embedder EmbeddingGenerator,
	profiles llm.ProfileResolver,
	creds llm.CredentialResolver,
	logger *slog.Logger,
) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		memories: memories,
		indices:  indices,
		embedder: embedder,
		profiles: profiles,
		creds:    creds,
		logger:   logger.With("component", "indexer"),
	}
}

// IndexMemory embeds memory.Content with the user's profile and upserts the
// vector into the owner's index. Errors are returned so the caller can
// retry; the index is not saved here.
func (ix *Indexer) IndexMemory(ctx context.Context, userID string, memory *types.Memory) error {
	if memory == nil || memory.ID == "" || memory.OwnerEntityID == "" {
		return fmt.Errorf("%w: memory with ID and owner entity is required", storage.ErrInvalidInput)
	}

	profile, err := ix.profiles.ResolveProfile(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("failed to resolve embedding profile: %w", err)
	}

	idx, err := ix.indices.GetStore(ctx, memory.OwnerEntityID)
	if err != nil {
		return err
	}
	return ix.index(ctx, idx, profile, memory)
}

func (ix *Indexer) index(ctx context.Context, idx *vectorindex.Index, profile *types.EmbeddingProfile, memory *types.Memory) error {
	embedding, err := ix.embedder.Generate(ctx, memory.Content, profile, ix.creds)
	if err != nil {
		return fmt.Errorf("failed to embed memory %s: %w", memory.ID, err)
	}

	metadata := types.VectorMetadata{
		MemoryID:      memory.ID,
		OwnerEntityID: memory.OwnerEntityID,
		Source:        memory.Source,
	}
	if err := idx.AddVector(memory.ID, embedding.Vector, metadata); err != nil {
		return fmt.Errorf("failed to index memory %s: %w", memory.ID, err)
	}
	return nil
}

// RemoveMemory drops a memory's vector from its owner's index and reports
// whether it was present.
func (ix *Indexer) RemoveMemory(ctx context.Context, ownerEntityID, memoryID string) (bool, error) {
	idx, err := ix.indices.GetStore(ctx, ownerEntityID)
	if err != nil {
		return false, err
	}
	return idx.RemoveVector(memoryID), nil
}

// Rebuild discards the owner's index and re-embeds every memory of the
// owner with the user's current profile, then saves. Individual embedding
// failures are counted in the report. A dimension mismatch, which means
// the profile returns vectors of varying size, aborts the rebuild.
func (ix *Indexer) Rebuild(ctx context.Context, userID, ownerEntityID string) (*RebuildReport, error) {
	start := time.Now()
	report := &RebuildReport{OwnerEntityID: ownerEntityID}

	// Resolve first so a missing profile leaves the old index alone.
	profile, err := ix.profiles.ResolveProfile(ctx, userID, "")
	if err != nil {
		return report, fmt.Errorf("failed to resolve embedding profile: %w", err)
	}

	memories, err := ix.memories.FindByOwnerEntity(ctx, ownerEntityID)
	if err != nil {
		return report, fmt.Errorf("failed to load memories for %q: %w", ownerEntityID, err)
	}
	report.Total = len(memories)

	if _, err := ix.indices.DeleteStore(ctx, ownerEntityID); err != nil {
		return report, err
	}
	idx, err := ix.indices.GetStore(ctx, ownerEntityID)
	if err != nil {
		return report, err
	}

	for _, memory := range memories {
		if err := ix.index(ctx, idx, profile, memory); err != nil {
			if vectorindex.IsDimensionMismatch(err) {
				return report, err
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			ix.logger.Warn("memory not indexed during rebuild", "owner", ownerEntityID, "memory_id", memory.ID, "error", err)
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, memory.ID)
			continue
		}
		report.Indexed++
	}
	report.Dimensions, _ = idx.Dimensions()

	if err := ix.indices.SaveStore(ctx, ownerEntityID); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	ix.logger.Info("vector index rebuilt",
		"owner", ownerEntityID, "indexed", report.Indexed, "failed", report.Failed, "duration", report.Duration)
	return report, nil
}

// DeleteOwner removes the owner's index from memory and storage. Call it
// when the owner entity itself is deleted.
func (ix *Indexer) DeleteOwner(ctx context.Context, ownerEntityID string) (bool, error) {
	return ix.indices.DeleteStore(ctx, ownerEntityID)
}
