// Package postgres stores the dashboard's records directly in PostgreSQL
// through lib/pq, for deployments that bypass the hosted REST gateway.
package postgres

import (
	"context"
	"database/sql"
)

// Connect opens a PostgreSQL connection using the provided options.
func Connect(ctx context.Context, opts ...Option) (*sql.DB, error) {
	return Open(ctx, opts...)
}

// Migrate applies Schema followed by any extra statements.
func Migrate(ctx context.Context, db *sql.DB, extra ...string) error {
	return ApplyMigrations(ctx, db, append(append([]string{}, Schema...), extra...)...)
}
