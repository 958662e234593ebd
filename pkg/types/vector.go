package types

import (
	"encoding/json"
	"time"
)

// VectorMetadata travels with every vector in an index. MemoryID and
// OwnerEntityID are always set; Source is denormalized from the memory so
// search predicates can filter without a storage round trip. Payload is
// opaque to the index.
type VectorMetadata struct {
	MemoryID      string          `json:"memoryId"`
	OwnerEntityID string          `json:"ownerEntityId"`
	Source        MemorySource    `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// VectorEntry is one stored vector. ID conventionally equals the source
// memory's ID.
type VectorEntry struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Metadata  VectorMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// IndexSnapshot is the persisted form of one owner entity's vector index.
// Dimensions is zero until the index receives its first vector.
type IndexSnapshot struct {
	OwnerEntityID string        `json:"ownerEntityId"`
	Version       int           `json:"version"`
	Dimensions    int           `json:"dimensions"`
	Entries       []VectorEntry `json:"entries"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
