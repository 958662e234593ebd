package sqlite

// Schema creates every table the SQLite backend uses. All statements are
// idempotent.
const Schema = `
-- Memories: free-text memories owned by an entity (character).
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    owner_entity_id TEXT NOT NULL,
    content TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    importance REAL NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT 'AUTO',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    last_accessed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_entity_id);

-- Embedding profiles: per-user embedding endpoint configuration.
CREATE TABLE IF NOT EXISTS embedding_profiles (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    api_key_ref TEXT NOT NULL DEFAULT '',
    base_url TEXT NOT NULL DEFAULT '',
    model_name TEXT NOT NULL,
    dimensions INTEGER NOT NULL DEFAULT 0,
    is_default INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_profiles_owner ON embedding_profiles(owner_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_single_default
    ON embedding_profiles(owner_id) WHERE is_default = 1;

-- Vector indices: one row per owner entity, entries in vector_entries.
CREATE TABLE IF NOT EXISTS vector_indices (
    owner_entity_id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS vector_entries (
    owner_entity_id TEXT NOT NULL REFERENCES vector_indices(owner_entity_id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    vector BLOB NOT NULL,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (owner_entity_id, id)
);
`
