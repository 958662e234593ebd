// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema creates the base tables. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    owner_entity_id TEXT NOT NULL,
    content TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    keywords JSONB NOT NULL DEFAULT '[]',
    tags JSONB NOT NULL DEFAULT '[]',
    importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT 'AUTO',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    last_accessed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_entity_id);

CREATE TABLE IF NOT EXISTS embedding_profiles (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    api_key_ref TEXT NOT NULL DEFAULT '',
    base_url TEXT NOT NULL DEFAULT '',
    model_name TEXT NOT NULL,
    dimensions INTEGER NOT NULL DEFAULT 0,
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_profiles_owner ON embedding_profiles(owner_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_single_default
    ON embedding_profiles(owner_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS vector_indices (
    owner_entity_id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS vector_entries (
    owner_entity_id TEXT NOT NULL REFERENCES vector_indices(owner_entity_id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    vector BYTEA NOT NULL,
    metadata JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (owner_entity_id, id)
);
`

// MigrationPgvector adds a native vector column next to the BYTEA copy.
// The column is unconstrained because each owner's index fixes its own
// dimensionality. Only applied when the vector extension is installed.
const MigrationPgvector = `
ALTER TABLE vector_entries ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
