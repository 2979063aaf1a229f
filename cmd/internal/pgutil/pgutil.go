// Package pgutil holds the small Postgres helpers shared by every store:
// identifier quoting, schema validation and driver error classification.
package pgutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "userbase"

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Schema validates a schema name, applying DefaultSchema when blank.
func Schema(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSchema, nil
	}
	if !identRe.MatchString(s) {
		return "", fmt.Errorf("pgutil: invalid schema identifier %q", s)
	}
	return s, nil
}

// Ident safely quotes a schema-qualified identifier: "schema"."name".
func Ident(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// UniqueViolation returns the violated constraint name (lowercased) for a
// unique_violation (23505).
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

// IsForeignKeyViolation reports a foreign_key_violation (23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}

// Field maps a unique constraint name to the logical field reported in
// conflict errors. Stable schema names first, substring heuristics after.
func Field(constraint string) string {
	switch constraint {
	case "uq_users_handle":
		return "handle"
	case "uq_identities_hive_handle", "uq_identities_evm_address", "uq_identities_farcaster_fid":
		return "identity"
	case "uq_identities_primary":
		return "primary_identity"
	case "uq_auth_methods_type_identifier":
		return "auth_method"
	case "uq_sessions_refresh_token_hash":
		return "refresh_token"
	case "uq_magic_link_tokens_token_hash":
		return "magic_link_token"
	}
	switch {
	case strings.Contains(constraint, "handle"):
		return "handle"
	case strings.Contains(constraint, "identit"):
		return "identity"
	case strings.Contains(constraint, "token"):
		return "token"
	default:
		return "unique"
	}
}
