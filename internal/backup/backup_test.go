package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(path)
	require.NoError(t, err)
	return db
}

func storeMemory(t *testing.T, db *sql.DB, content string) {
	t.Helper()
	err := sqlite.NewMemoryStoreFromDB(db).Store(context.Background(), &types.Memory{
		OwnerEntityID: "c1",
		Content:       content,
		Source:        types.SourceManual,
	})
	require.NoError(t, err)
}

func countMemories(t *testing.T, path string) int {
	t.Helper()
	db := openDB(t, path)
	defer func() { _ = db.Close() }()
	memories, err := sqlite.NewMemoryStoreFromDB(db).FindByOwnerEntity(context.Background(), "c1")
	require.NoError(t, err)
	return len(memories)
}

func TestBackupNow(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, filepath.Join(dir, "recall.db"))
	defer func() { _ = db.Close() }()
	storeMemory(t, db, "Alice grew up in Lisbon")

	svc, err := NewService(db, Config{Dir: filepath.Join(dir, "backups")}, nil)
	require.NoError(t, err)

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Positive(t, result.Size)
	assert.FileExists(t, result.Path)
	assert.Equal(t, 1, countMemories(t, result.Path))

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.Path, list[0].Path)
}

func TestBackupNow_Retention(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, filepath.Join(dir, "recall.db"))
	defer func() { _ = db.Close() }()

	backupDir := filepath.Join(dir, "backups")
	svc, err := NewService(db, Config{Dir: backupDir, Keep: 2, SkipVerify: true}, nil)
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		result, err := svc.BackupNow(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Verified)
		paths = append(paths, result.Path)
	}

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, paths[3], list[0].Path)
	assert.Equal(t, paths[2], list[1].Path)
	assert.NoFileExists(t, paths[0])
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, Config{Dir: t.TempDir()}, nil)
	assert.Error(t, err)

	db := openDB(t, filepath.Join(t.TempDir(), "recall.db"))
	defer func() { _ = db.Close() }()
	_, err = NewService(db, Config{}, nil)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, Verify(ctx, filepath.Join(dir, "nope.db")))
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.db")
		require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, but long enough to not be empty"), 0o600))
		assert.Error(t, Verify(ctx, path))
	})

	t.Run("foreign database", func(t *testing.T) {
		path := filepath.Join(dir, "other.db")
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE notes (id TEXT)`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		err = Verify(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing table")
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "recall.db")

	db := openDB(t, dbPath)
	storeMemory(t, db, "Alice grew up in Lisbon")

	svc, err := NewService(db, Config{Dir: filepath.Join(dir, "backups")}, nil)
	require.NoError(t, err)
	result, err := svc.BackupNow(ctx)
	require.NoError(t, err)

	storeMemory(t, db, "Bob plays the cello")
	require.NoError(t, db.Close())
	require.Equal(t, 2, countMemories(t, dbPath))

	require.NoError(t, Restore(ctx, result.Path, dbPath))
	assert.Equal(t, 1, countMemories(t, dbPath))
	assert.NoFileExists(t, dbPath+".restore")
}

func TestRestore_RejectsInvalidBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "recall.db")
	require.NoError(t, os.WriteFile(target, []byte("keep me"), 0o600))

	err := Restore(context.Background(), filepath.Join(dir, "missing.db"), target)
	require.Error(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestListBackups(t *testing.T) {
	dir := t.TempDir()

	older := backupName(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	newer := backupName(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	for _, name := range []string{older, newer, "notes.txt", "recall-backup-garbage.db"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	list, err := listBackups(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, filepath.Join(dir, newer), list[0].Path)
	assert.Equal(t, filepath.Join(dir, older), list[1].Path)

	none, err := listBackups(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseBackupName(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 123456000, time.UTC)
	got, ok := parseBackupName(backupName(at))
	require.True(t, ok)
	assert.True(t, at.Equal(got))

	_, ok = parseBackupName("recall-backup-20261018.db")
	assert.False(t, ok)
}
