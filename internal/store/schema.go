// Package store is the broker's PostgreSQL persistence layer: providers,
// tools, tool embeddings (pgvector), layered config values, bearer tokens,
// and the audit log — all behind a single [pgxpool.Pool].
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCore = `
CREATE TABLE IF NOT EXISTS providers (
    id           UUID         PRIMARY KEY,
    name         TEXT         NOT NULL UNIQUE,
    description  TEXT         NOT NULL DEFAULT '',
    domain       TEXT         NOT NULL DEFAULT '',
    transport    TEXT         NOT NULL,
    config       JSONB        NOT NULL,
    visibility   TEXT         NOT NULL DEFAULT 'visible',
    enabled      BOOLEAN      NOT NULL DEFAULT true,
    ownership    TEXT         NOT NULL DEFAULT 'built_in',
    owner_id     TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_domain ON providers (domain);

CREATE TABLE IF NOT EXISTS tools (
    id           UUID         PRIMARY KEY,
    provider_id  UUID         NOT NULL REFERENCES providers (id) ON DELETE CASCADE,
    name         TEXT         NOT NULL,
    description  TEXT         NOT NULL DEFAULT '',
    schema       JSONB        NOT NULL,
    UNIQUE (provider_id, name)
);

CREATE INDEX IF NOT EXISTS idx_tools_provider_id ON tools (provider_id);

CREATE TABLE IF NOT EXISTS user_provider_preferences (
    user_id      TEXT         NOT NULL,
    provider_id  UUID         NOT NULL REFERENCES providers (id) ON DELETE CASCADE,
    enabled      BOOLEAN      NOT NULL,
    PRIMARY KEY (user_id, provider_id)
);

CREATE TABLE IF NOT EXISTS provider_secrets (
    provider_id  UUID         NOT NULL REFERENCES providers (id) ON DELETE CASCADE,
    name         TEXT         NOT NULL,
    ciphertext   TEXT         NOT NULL,
    PRIMARY KEY (provider_id, name)
);

CREATE TABLE IF NOT EXISTS config_definitions (
    key              TEXT     PRIMARY KEY,
    category         TEXT     NOT NULL DEFAULT '',
    value_type       TEXT     NOT NULL DEFAULT 'string',
    display_hint     TEXT     NOT NULL DEFAULT '',
    default_value    TEXT     NOT NULL DEFAULT '',
    possible_values  JSONB,
    validators       JSONB
);

CREATE TABLE IF NOT EXISTS config_values (
    key          TEXT         NOT NULL REFERENCES config_definitions (key) ON DELETE CASCADE,
    scope        TEXT         NOT NULL,
    user_id      TEXT         NOT NULL DEFAULT '',
    value        TEXT         NOT NULL,
    PRIMARY KEY (key, scope, user_id)
);

CREATE TABLE IF NOT EXISTS bearer_tokens (
    id           UUID         PRIMARY KEY,
    user_id      TEXT         NOT NULL,
    name         TEXT         NOT NULL DEFAULT '',
    token_hash   TEXT         NOT NULL UNIQUE,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at   TIMESTAMPTZ,
    revoked_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_bearer_tokens_hash ON bearer_tokens (token_hash);

CREATE TABLE IF NOT EXISTS audit_entries (
    id           BIGSERIAL    PRIMARY KEY,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    user_id      TEXT         NOT NULL DEFAULT '',
    provider_id  UUID,
    tool_name    TEXT         NOT NULL DEFAULT '',
    success      BOOLEAN      NOT NULL,
    detail       JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_entries_user ON audit_entries (user_id);
`

// ddlToolEmbeddings returns the DDL for the ToolEmbedding table, with the
// vector dimension substituted at migration time. One table is created per
// active embedding model; callers pass the model-specific table name.
func ddlToolEmbeddings(tableName string, dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    row_id       BIGSERIAL    PRIMARY KEY,
    tool_id      UUID         NOT NULL UNIQUE REFERENCES tools (id) ON DELETE CASCADE,
    provider_id  UUID         NOT NULL,
    domain       TEXT         NOT NULL DEFAULT '',
    embedding    vector(%[2]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding
    ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, tableName, dimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. It is idempotent and safe to call on every broker start.
//
// toolEmbeddingTable and embeddingDimensions name the vector table and its
// dimension, as supplied by the caller; no table records which model or
// dimension is active. Additional tables can be migrated later via
// [MigrateEmbeddingTable].
func Migrate(ctx context.Context, pool *pgxpool.Pool, toolEmbeddingTable string, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlCore); err != nil {
		return fmt.Errorf("store: migrate core schema: %w", err)
	}
	if err := MigrateEmbeddingTable(ctx, pool, toolEmbeddingTable, embeddingDimensions); err != nil {
		return err
	}
	return nil
}

// MigrateEmbeddingTable ensures the ToolEmbedding table for a specific
// embedding model exists, with the given vector dimension baked into the
// column type.
func MigrateEmbeddingTable(ctx context.Context, pool *pgxpool.Pool, tableName string, dimensions int) error {
	if _, err := pool.Exec(ctx, ddlToolEmbeddings(tableName, dimensions)); err != nil {
		return fmt.Errorf("store: migrate embedding table %q: %w", tableName, err)
	}
	return nil
}
