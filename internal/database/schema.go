package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The UNIQUE constraint on short_code is what makes code allocation safe
// under concurrent creation: insertion is the uniqueness check, and a
// constraint violation is surfaced to the generator as a collision.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		secret TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		last_used_at TIMESTAMPTZ,
		use_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS shortlinks (
		id BIGSERIAL PRIMARY KEY,
		short_code VARCHAR(16) UNIQUE NOT NULL,
		original_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		click_count BIGINT NOT NULL DEFAULT 0,
		last_accessed TIMESTAMPTZ,
		created_by_key_id BIGINT REFERENCES api_keys(id) ON DELETE SET NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shortlinks_created_by ON shortlinks(created_by_key_id)`,
	`CREATE INDEX IF NOT EXISTS idx_shortlinks_created_at ON shortlinks(created_at)`,
}

// InitSchema creates the tables and indexes if they do not exist yet.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
