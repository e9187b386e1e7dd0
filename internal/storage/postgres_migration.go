package storage

import (
	"context"
	"fmt"
)

// Email intentionally carries no unique constraint: uniqueness is enforced by
// the pre-insert check, keeping both drivers' failure behaviour identical.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS users_email_idx ON users (email)`,
	`CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	image_key TEXT NOT NULL DEFAULT '',
	creator_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS posts_feed_idx ON posts (created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS user_posts (
	user_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	PRIMARY KEY (user_id, post_id)
)`,
}

func (r *postgresRepository) ensureSchema(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := r.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
