package sqldb

import (
	"context"
	"database/sql"
)

// Dialect isolates the engine-specific bits: migrations and placeholder
// syntax. Queries themselves are written once in postgres form and rebound.
type Dialect interface {
	Name() string
	Migrate(ctx context.Context, db *sql.DB) error
	Rebind(query string) string
}
