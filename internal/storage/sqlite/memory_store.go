package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db *sql.DB
}

// NewMemoryStore opens (or creates) the database at dsn and returns a store
// over it.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{db: db}, nil
}

// NewMemoryStoreFromDB wraps an already opened database. The caller keeps
// ownership of db.
func NewMemoryStoreFromDB(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// GetDB returns the underlying database so other stores can share it.
func (s *MemoryStore) GetDB() *sql.DB {
	return s.db
}

const memoryColumns = `
	id, owner_entity_id, content, summary, keywords, tags,
	importance, source, created_at, updated_at, last_accessed_at`

// Store creates or updates a memory (upsert semantics).
func (s *MemoryStore) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.OwnerEntityID == "" {
		return fmt.Errorf("%w: owner entity ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if memory.Source == "" {
		memory.Source = types.SourceAuto
	}
	if !memory.Source.IsValid() {
		return fmt.Errorf("%w: unknown memory source %q", storage.ErrInvalidInput, memory.Source)
	}
	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now

	keywordsJSON, err := json.Marshal(nonNil(memory.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	tagsJSON, err := json.Marshal(nonNil(memory.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_entity_id = excluded.owner_entity_id,
			content = excluded.content,
			summary = excluded.summary,
			keywords = excluded.keywords,
			tags = excluded.tags,
			importance = excluded.importance,
			source = excluded.source,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		memory.ID, memory.OwnerEntityID, memory.Content, memory.Summary,
		string(keywordsJSON), string(tagsJSON),
		memory.Importance, string(memory.Source),
		memory.CreatedAt, memory.UpdatedAt, nullTime(memory.LastAccessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// FindByID retrieves a memory by ID.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return memory, nil
}

// FindByOwnerEntity returns all memories of an owner entity, newest first.
func (s *MemoryStore) FindByOwnerEntity(ctx context.Context, ownerEntityID string) ([]*types.Memory, error) {
	if ownerEntityID == "" {
		return nil, fmt.Errorf("%w: owner entity ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE owner_entity_id = ? ORDER BY created_at DESC, id`,
		ownerEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	memories := []*types.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return memories, nil
}

// UpdateAccessTime sets last_accessed_at for a memory of the owner entity.
func (s *MemoryStore) UpdateAccessTime(ctx context.Context, ownerEntityID, memoryID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET last_accessed_at = ? WHERE id = ? AND owner_entity_id = ?`,
		at.UTC(), memoryID, ownerEntityID)
	if err != nil {
		return fmt.Errorf("failed to update access time: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete permanently removes a memory.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		memory                 types.Memory
		keywordsJSON, tagsJSON string
		source                 string
		lastAccessedAt         sql.NullTime
	)

	err := row.Scan(
		&memory.ID,
		&memory.OwnerEntityID,
		&memory.Content,
		&memory.Summary,
		&keywordsJSON,
		&tagsJSON,
		&memory.Importance,
		&source,
		&memory.CreatedAt,
		&memory.UpdatedAt,
		&lastAccessedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Source = types.MemorySource(source)
	if err := json.Unmarshal([]byte(keywordsJSON), &memory.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &memory.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		memory.LastAccessedAt = &t
	}
	return &memory, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ storage.MemoryStore = (*MemoryStore)(nil)
