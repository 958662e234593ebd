package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "recall-backup-"
	fileSuffix = ".db"

	// timestampLayout sorts lexically and includes microseconds so two
	// backups in the same second get distinct names.
	timestampLayout = "20060102-150405.000000"
)

func backupName(t time.Time) string {
	return filePrefix + t.UTC().Format(timestampLayout) + fileSuffix
}

// parseBackupName extracts the timestamp from a backup file name.
func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// listBackups returns the backups in dir, newest first. Files that do not
// follow the backup naming scheme are ignored. A missing directory has no
// backups.
func listBackups(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// prune removes all but the keep newest backups in dir and returns how many
// were removed.
func prune(dir string, keep int) (int, error) {
	backups, err := listBackups(dir)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Path, err)
		}
		removed++
	}
	return removed, nil
}
