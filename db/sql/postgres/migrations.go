package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables the Repository reads and writes. Statements are
// idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id uuid PRIMARY KEY,
		full_name text NOT NULL DEFAULT '',
		avatar_url text NOT NULL DEFAULT '',
		subscription_tier text NOT NULL DEFAULT 'free'
	)`,
	assetTableSchema("products"),
	assetTableSchema("audiences"),
	assetTableSchema("experts"),
	`CREATE TABLE IF NOT EXISTS campaigns (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		name text NOT NULL,
		status text NOT NULL DEFAULT 'active',
		objective text NOT NULL DEFAULT '',
		product_id uuid REFERENCES products(id) ON DELETE SET NULL,
		audience_id uuid REFERENCES audiences(id) ON DELETE SET NULL,
		expert_id uuid REFERENCES experts(id) ON DELETE SET NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS campaigns_user_created_idx ON campaigns (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS generated_content (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		campaign_id uuid REFERENCES campaigns(id) ON DELETE SET NULL,
		type text NOT NULL CHECK (type IN ('email', 'message', 'static', 'ugc', 'content')),
		title text NOT NULL DEFAULT '',
		content jsonb NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS generated_content_user_created_idx ON generated_content (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS knowledge_files (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		name text NOT NULL,
		size_bytes bigint NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS brand_voices (
		user_id uuid PRIMARY KEY,
		tags jsonb NOT NULL DEFAULT '[]',
		description text NOT NULL DEFAULT '',
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func assetTableSchema(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		name text NOT NULL,
		attributes jsonb NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now()
	)`
}

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
