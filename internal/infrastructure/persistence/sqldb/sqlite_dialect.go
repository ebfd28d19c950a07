package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/pressly/goose/v3"

	"github.com/arzwatch/arzwatch/internal/infrastructure/persistence/sqldb/migrations"
)

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLiteFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "sqlite"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// Rebind turns postgres-style $N placeholders into ?. Queries keep their
// parameters in ascending order, so positional binding stays correct.
func (d *SQLiteDialect) Rebind(query string) string {
	return placeholderPattern.ReplaceAllString(query, "?")
}
