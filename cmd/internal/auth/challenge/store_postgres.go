package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/pgutil"
)

// PostgresStore persists challenges in <schema>.auth_challenges.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over pool. An empty schema means the default.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("challenge: nil pool")
	}
	s, err := pgutil.Schema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: pgutil.Ident(s, "auth_challenges")}, nil
}

func (s *PostgresStore) InsertChallenge(ctx context.Context, c identity.Challenge) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (
		     id, purpose, user_id, type, identifier, nonce, message, created_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, string(c.Purpose), c.UserID, string(c.Type), c.Identifier,
		c.Nonce, c.Message, c.CreatedAt, c.ExpiresAt,
	)
	if err != nil {
		if pgutil.IsForeignKeyViolation(err) {
			return identity.NotFoundError{Op: "challenge.InsertChallenge", Resource: "user"}
		}
		return fmt.Errorf("challenge.InsertChallenge: %w: %w", identity.ErrDependency, err)
	}
	return nil
}

func (s *PostgresStore) LatestUnconsumedChallenge(ctx context.Context, scope identity.ChallengeScope) (identity.Challenge, error) {
	const op = "challenge.LatestUnconsumedChallenge"

	var (
		c       identity.Challenge
		purpose string
		typ     string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, purpose, user_id, type, identifier, nonce, message, created_at, expires_at, consumed_at
		   FROM `+s.table+`
		  WHERE purpose = $1
		    AND user_id IS NOT DISTINCT FROM $2
		    AND type = $3
		    AND identifier = $4
		    AND consumed_at IS NULL
		  ORDER BY created_at DESC, id DESC
		  LIMIT 1`,
		string(scope.Purpose), scope.UserID, string(scope.Type), scope.Identifier,
	).Scan(
		&c.ID, &purpose, &c.UserID, &typ, &c.Identifier,
		&c.Nonce, &c.Message, &c.CreatedAt, &c.ExpiresAt, &c.ConsumedAt,
	)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return identity.Challenge{}, identity.NotFoundError{Op: op, Resource: "challenge"}
		}
		return identity.Challenge{}, fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	c.Purpose = identity.ChallengePurpose(purpose)
	c.Type = identity.IdentityType(typ)
	return c, nil
}

func (s *PostgresStore) ConsumeChallenge(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+`
		    SET consumed_at = $2
		  WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("challenge.ConsumeChallenge: %w: %w", identity.ErrDependency, err)
	}
	return tag.RowsAffected() == 1, nil
}
