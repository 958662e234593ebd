// Package backup takes verified point-in-time copies of the SQLite
// database holding memories, embedding profiles and vector indices, and
// keeps a bounded number of them.
package backup

import (
	"time"
)

// DefaultKeep is the number of backups retained when Config.Keep is zero.
const DefaultKeep = 10

// Config holds backup configuration.
type Config struct {
	// Dir is the directory where backups are written.
	Dir string

	// Keep is the number of newest backups retained after each backup
	// (default: 10). Negative disables pruning.
	Keep int

	// SkipVerify disables the integrity check after each backup.
	SkipVerify bool
}

// Info describes one backup file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a completed backup.
type Result struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
	Verified bool          `json:"verified"`

	// Pruned is the number of older backups removed by retention.
	Pruned int `json:"pruned"`
}
