package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ProfileStore implements storage.ProfileStore using SQLite.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a profile store over an opened database.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileColumns = `id, owner_id, provider, api_key_ref, base_url, model_name, dimensions, is_default`

// SaveProfile upserts a profile. When the profile is the default, the
// owner's other profiles lose their default flag in the same transaction.
func (s *ProfileStore) SaveProfile(ctx context.Context, profile *types.EmbeddingProfile) error {
	if profile == nil {
		return storage.ErrInvalidInput
	}
	if profile.OwnerID == "" {
		return fmt.Errorf("%w: profile owner is required", storage.ErrInvalidInput)
	}
	if profile.ModelName == "" {
		return fmt.Errorf("%w: model name is required", storage.ErrInvalidInput)
	}
	if _, err := types.ParseProvider(string(profile.Provider)); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if profile.Dimensions < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", storage.ErrInvalidInput)
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if profile.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE embedding_profiles SET is_default = 0, updated_at = CURRENT_TIMESTAMP WHERE owner_id = ? AND id != ?`,
			profile.OwnerID, profile.ID); err != nil {
			return fmt.Errorf("failed to clear default profile: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embedding_profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			provider = excluded.provider,
			api_key_ref = excluded.api_key_ref,
			base_url = excluded.base_url,
			model_name = excluded.model_name,
			dimensions = excluded.dimensions,
			is_default = excluded.is_default,
			updated_at = CURRENT_TIMESTAMP
	`,
		profile.ID, profile.OwnerID, string(profile.Provider), profile.APIKeyRef,
		profile.BaseURL, profile.ModelName, profile.Dimensions, profile.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID.
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (*types.EmbeddingProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM embedding_profiles WHERE id = ?`, id)
	return s.scanOne(row)
}

// GetDefaultProfile retrieves the owner's default profile.
func (s *ProfileStore) GetDefaultProfile(ctx context.Context, ownerID string) (*types.EmbeddingProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM embedding_profiles WHERE owner_id = ? AND is_default = 1`, ownerID)
	return s.scanOne(row)
}

// ListProfiles returns every profile of the owner, default first.
func (s *ProfileStore) ListProfiles(ctx context.Context, ownerID string) ([]*types.EmbeddingProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM embedding_profiles WHERE owner_id = ? ORDER BY is_default DESC, created_at, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*types.EmbeddingProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

func (s *ProfileStore) scanOne(row rowScanner) (*types.EmbeddingProfile, error) {
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (*types.EmbeddingProfile, error) {
	var (
		p        types.EmbeddingProfile
		provider string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &provider, &p.APIKeyRef, &p.BaseURL, &p.ModelName, &p.Dimensions, &p.IsDefault); err != nil {
		return nil, err
	}
	p.Provider = types.Provider(provider)
	return &p, nil
}

var _ storage.ProfileStore = (*ProfileStore)(nil)
