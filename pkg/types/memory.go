package types

import "time"

// MemorySource records how a memory came to exist.
type MemorySource string

const (
	// SourceAuto marks memories extracted automatically from conversation.
	SourceAuto MemorySource = "AUTO"

	// SourceManual marks memories written by the user.
	SourceManual MemorySource = "MANUAL"

	// SourceImport marks memories brought in from an external export.
	SourceImport MemorySource = "IMPORT"
)

// IsValid reports whether s is one of the known memory sources.
func (s MemorySource) IsValid() bool {
	switch s {
	case SourceAuto, SourceManual, SourceImport:
		return true
	}
	return false
}

// Memory is a single free-text memory accumulated by an owner entity
// (typically a character). The retrieval subsystem reads Content to embed
// and score it, and writes LastAccessedAt after a successful retrieval; the
// rest of the lifecycle belongs to whoever manages memories.
type Memory struct {
	ID            string       `json:"id"`
	OwnerEntityID string       `json:"owner_entity_id"` // Character (or other entity) the memory belongs to
	Content       string       `json:"content"`
	Summary       string       `json:"summary,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Importance    float64      `json:"importance"` // 0.0-1.0
	Source        MemorySource `json:"source"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// RankedMemory is a memory returned by a search together with its score.
type RankedMemory struct {
	Memory *Memory `json:"memory"`

	// Score is cosine similarity on the embedding path and the lexical
	// match ratio on the fallback path. Both are in [0, 1] in practice.
	Score float64 `json:"score"`
}
