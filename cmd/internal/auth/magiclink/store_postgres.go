package magiclink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/pgutil"
)

// PostgresStore persists magic-link tokens in <schema>.magic_link_tokens.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("magiclink: nil pool")
	}
	s, err := pgutil.Schema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: pgutil.Ident(s, "magic_link_tokens")}, nil
}

func (s *PostgresStore) InsertMagicLink(ctx context.Context, t identity.MagicLinkToken) error {
	const op = "magiclink.InsertMagicLink"

	var ip any
	if t.RequestedIP != nil {
		ip = t.RequestedIP.String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (id, email, token_hash, created_at, expires_at, requested_ip)
		 VALUES ($1, $2, $3, $4, $5, $6::inet)`,
		t.ID, t.Email, t.TokenHash, t.CreatedAt, t.ExpiresAt, ip,
	)
	if err != nil {
		if c, ok := pgutil.UniqueViolation(err); ok {
			return identity.ConflictError{Op: op, Field: pgutil.Field(c)}
		}
		return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	return nil
}

func (s *PostgresStore) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (identity.MagicLinkToken, error) {
	const op = "magiclink.ConsumeMagicLink"

	var t identity.MagicLinkToken
	err := s.pool.QueryRow(ctx,
		`UPDATE `+s.table+`
		    SET consumed_at = $2
		  WHERE token_hash = $1
		    AND consumed_at IS NULL
		    AND expires_at > $2
		RETURNING id, email, token_hash, created_at, expires_at, consumed_at`,
		tokenHash, now,
	).Scan(&t.ID, &t.Email, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.ConsumedAt)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return identity.MagicLinkToken{}, identity.NotFoundError{Op: op, Resource: "magic_link_token"}
		}
		return identity.MagicLinkToken{}, fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	return t, nil
}
