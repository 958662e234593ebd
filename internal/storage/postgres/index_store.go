package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

// IndexStore persists vector index snapshots in PostgreSQL and implements
// vectorindex.Persister. Vectors are always written as BYTEA. When pgvector
// is available they are also written to the native embedding_vec column,
// which is preferred on load.
type IndexStore struct {
	db *DB
}

// NewIndexStore creates an index store over an opened database.
func NewIndexStore(db *DB) *IndexStore {
	return &IndexStore{db: db}
}

// Load reads the snapshot for ownerEntityID, or returns (nil, nil).
func (s *IndexStore) Load(ctx context.Context, ownerEntityID string) (*types.IndexSnapshot, error) {
	snap := &types.IndexSnapshot{OwnerEntityID: ownerEntityID}

	err := s.db.QueryRowContext(ctx,
		`SELECT version, dimensions, created_at, updated_at FROM vector_indices WHERE owner_entity_id = $1`,
		ownerEntityID,
	).Scan(&snap.Version, &snap.Dimensions, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load index header: %w", err)
	}

	vecColumn := "NULL"
	if s.db.PgvectorAvailable {
		vecColumn = "embedding_vec"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, `+vecColumn+`, metadata, created_at FROM vector_entries WHERE owner_entity_id = $1 ORDER BY id`,
		ownerEntityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load index entries: %w", err)
	}
	defer rows.Close()

	snap.Entries = []types.VectorEntry{}
	for rows.Next() {
		var (
			entry        types.VectorEntry
			vectorBytes  []byte
			native       *pgvector.Vector
			metadataJSON []byte
		)
		if err := rows.Scan(&entry.ID, &vectorBytes, &native, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan index entry: %w", err)
		}
		if native != nil {
			entry.Vector = native.Slice()
		} else {
			entry.Vector, err = storage.DecodeVector(vectorBytes, len(vectorBytes)/4)
			if err != nil {
				return nil, fmt.Errorf("postgres: failed to decode vector %q: %w", entry.ID, err)
			}
		}
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: failed to unmarshal metadata %q: %w", entry.ID, err)
		}
		snap.Entries = append(snap.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate index entries: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *IndexStore) Save(ctx context.Context, ownerEntityID string, snap *types.IndexSnapshot) error {
	if ownerEntityID == "" || snap == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vector_indices (owner_entity_id, version, dimensions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(owner_entity_id) DO UPDATE SET
			version = EXCLUDED.version,
			dimensions = EXCLUDED.dimensions,
			updated_at = EXCLUDED.updated_at
	`, ownerEntityID, snap.Version, snap.Dimensions, snap.CreatedAt.UTC(), snap.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: failed to store index header: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_entries WHERE owner_entity_id = $1`, ownerEntityID); err != nil {
		return fmt.Errorf("postgres: failed to clear index entries: %w", err)
	}

	insert := `INSERT INTO vector_entries (owner_entity_id, id, vector, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`
	if s.db.PgvectorAvailable {
		insert = `INSERT INTO vector_entries (owner_entity_id, id, vector, metadata, created_at, embedding_vec) VALUES ($1, $2, $3, $4, $5, $6)`
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range snap.Entries {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal metadata %q: %w", entry.ID, err)
		}
		args := []any{ownerEntityID, entry.ID, storage.EncodeVector(entry.Vector), metadataJSON, entry.CreatedAt.UTC()}
		if s.db.PgvectorAvailable {
			args = append(args, pgvector.NewVector(entry.Vector))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("postgres: failed to store entry %q: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit index: %w", err)
	}
	return nil
}

// Delete removes the snapshot; entries follow via ON DELETE CASCADE.
func (s *IndexStore) Delete(ctx context.Context, ownerEntityID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM vector_indices WHERE owner_entity_id = $1`, ownerEntityID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to delete index: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var _ vectorindex.Persister = (*IndexStore)(nil)
