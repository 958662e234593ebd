package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

// IndexStore persists vector index snapshots in SQLite. It implements
// vectorindex.Persister. Vectors are stored as little-endian float32 BLOBs.
type IndexStore struct {
	db *sql.DB
}

// NewIndexStore creates an index store over an opened database.
func NewIndexStore(db *sql.DB) *IndexStore {
	return &IndexStore{db: db}
}

// Load reads the snapshot for ownerEntityID, or returns (nil, nil).
func (s *IndexStore) Load(ctx context.Context, ownerEntityID string) (*types.IndexSnapshot, error) {
	snap := &types.IndexSnapshot{OwnerEntityID: ownerEntityID}

	err := s.db.QueryRowContext(ctx,
		`SELECT version, dimensions, created_at, updated_at FROM vector_indices WHERE owner_entity_id = ?`,
		ownerEntityID,
	).Scan(&snap.Version, &snap.Dimensions, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index header: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, metadata, created_at FROM vector_entries WHERE owner_entity_id = ? ORDER BY id`,
		ownerEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load index entries: %w", err)
	}
	defer rows.Close()

	snap.Entries = []types.VectorEntry{}
	for rows.Next() {
		var (
			entry        types.VectorEntry
			vectorBytes  []byte
			metadataJSON string
		)
		if err := rows.Scan(&entry.ID, &vectorBytes, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		// Stored length is authoritative; the index rejects mismatches on restore.
		entry.Vector, err = storage.DecodeVector(vectorBytes, len(vectorBytes)/4)
		if err != nil {
			return nil, fmt.Errorf("failed to decode vector %q: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata %q: %w", entry.ID, err)
		}
		snap.Entries = append(snap.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate index entries: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction, so a failed
// save leaves the previous snapshot intact.
func (s *IndexStore) Save(ctx context.Context, ownerEntityID string, snap *types.IndexSnapshot) error {
	if ownerEntityID == "" || snap == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vector_indices (owner_entity_id, version, dimensions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_entity_id) DO UPDATE SET
			version = excluded.version,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`, ownerEntityID, snap.Version, snap.Dimensions, snap.CreatedAt.UTC(), snap.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store index header: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_entries WHERE owner_entity_id = ?`, ownerEntityID); err != nil {
		return fmt.Errorf("failed to clear index entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_entries (owner_entity_id, id, vector, metadata, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range snap.Entries {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata %q: %w", entry.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, ownerEntityID, entry.ID, storage.EncodeVector(entry.Vector), string(metadataJSON), entry.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to store entry %q: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// Delete removes the snapshot and its entries.
func (s *IndexStore) Delete(ctx context.Context, ownerEntityID string) (bool, error) {
	// Entries go with the header via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `DELETE FROM vector_indices WHERE owner_entity_id = ?`, ownerEntityID)
	if err != nil {
		return false, fmt.Errorf("failed to delete index: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

var _ vectorindex.Persister = (*IndexStore)(nil)
