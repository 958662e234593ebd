package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Service backs up one open SQLite database.
type Service struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a backup service for db. A nil logger uses
// slog.Default().
func NewService(db *sql.DB, cfg Config, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if cfg.Keep == 0 {
		cfg.Keep = DefaultKeep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}, nil
}

// BackupNow writes a timestamped backup, verifies it unless disabled and
// prunes old backups. A backup that fails verification is removed.
// Retention failures are logged and do not fail the backup.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()

	if err := os.MkdirAll(s.cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(s.cfg.Dir, backupName(s.now()))
	if err := snapshot(ctx, s.db, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}
	result := &Result{Path: path, Size: info.Size()}

	if !s.cfg.SkipVerify {
		if err := Verify(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("backup verification failed: %w", err)
		}
		result.Verified = true
	}

	if s.cfg.Keep > 0 {
		pruned, err := prune(s.cfg.Dir, s.cfg.Keep)
		if err != nil {
			s.logger.Warn("failed to apply backup retention", "error", err)
		}
		result.Pruned = pruned
	}

	result.Duration = time.Since(start)
	s.logger.Info("backup completed",
		"path", result.Path, "size", result.Size, "verified", result.Verified, "pruned", result.Pruned)
	return result, nil
}

// List returns the backups in the configured directory, newest first.
func (s *Service) List() ([]Info, error) {
	return listBackups(s.cfg.Dir)
}
