// Package dbschema embeds the userbase Postgres DDL and applies it.
package dbschema

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/internal/pgutil"
)

//go:embed schema.sql
var schemaSQL string

// Render returns the DDL for schema with every placeholder replaced by the
// quoted schema name. The DDL is idempotent (IF NOT EXISTS throughout).
func Render(schema string) (string, error) {
	s, err := pgutil.Schema(schema)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{s}.Sanitize()), nil
}

// Apply runs the DDL for schema in a single transaction.
func Apply(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("dbschema: nil pool")
	}
	ddl, err := Render(schema)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dbschema: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("dbschema: apply: %w", err)
	}
	return tx.Commit(ctx)
}
