package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/pgutil"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions).
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	s, err := pgutil.Schema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: pgutil.Ident(s, "sessions")}, nil
}

const sessionColumns = `id, user_id, refresh_token_hash, created_at, last_used_at, expires_at,
	revoked_at, revocation_reason, user_agent, device_id, host(ip)`

// CreateSession inserts a new session row.
func (s *PostgresStore) CreateSession(ctx context.Context, row identity.Session) error {
	const op = "session.CreateSession"

	var ip any
	if row.IP != nil {
		ip = row.IP.String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (
		     id, user_id, refresh_token_hash,
		     created_at, last_used_at, expires_at,
		     user_agent, device_id, ip
		   ) VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8::inet)`,
		row.ID, row.UserID, row.RefreshTokenHash,
		row.CreatedAt, row.ExpiresAt,
		row.UserAgent, row.DeviceID, ip,
	)
	if err == nil {
		return nil
	}
	if c, ok := pgutil.UniqueViolation(err); ok {
		return identity.ConflictError{Op: op, Field: pgutil.Field(c)}
	}
	if pgutil.IsForeignKeyViolation(err) {
		return identity.NotFoundError{Op: op, Resource: "user"}
	}
	return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
}

// SessionByRefreshHash loads a session by refresh-token hash.
func (s *PostgresStore) SessionByRefreshHash(ctx context.Context, hash string) (identity.Session, error) {
	return s.one(ctx, "session.SessionByRefreshHash",
		`SELECT `+sessionColumns+` FROM `+s.table+` WHERE refresh_token_hash = $1`, hash)
}

// SessionByID loads a session row by ID.
func (s *PostgresStore) SessionByID(ctx context.Context, id string) (identity.Session, error) {
	return s.one(ctx, "session.SessionByID",
		`SELECT `+sessionColumns+` FROM `+s.table+` WHERE id = $1`, id)
}

// RevokeSession revokes a single session. Already revoked sessions keep
// their original timestamp and reason.
func (s *PostgresStore) RevokeSession(ctx context.Context, now time.Time, id, reason string) error {
	const op = "session.RevokeSession"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+`
		    SET revoked_at = $2, revocation_reason = $3
		  WHERE id = $1 AND revoked_at IS NULL`,
		id, now, reason,
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+s.table+` WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
		}
		if !exists {
			return identity.NotFoundError{Op: op, Resource: "session"}
		}
	}
	return nil
}

// RevokeUserSessions revokes every active session for a user.
func (s *PostgresStore) RevokeUserSessions(ctx context.Context, now time.Time, userID, reason string) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+`
		    SET revoked_at = $2, revocation_reason = $3
		  WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now, reason,
	)
	if err != nil {
		return 0, fmt.Errorf("session.RevokeUserSessions: %w: %w", identity.ErrDependency, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) one(ctx context.Context, op, query string, arg any) (identity.Session, error) {
	row, err := scanSession(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return identity.Session{}, identity.NotFoundError{Op: op, Resource: "session"}
		}
		return identity.Session{}, fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	return row, nil
}

func scanSession(r pgx.Row) (identity.Session, error) {
	var (
		row identity.Session
		ip  *string
	)
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.RevocationReason,
		&row.UserAgent,
		&row.DeviceID,
		&ip,
	)
	if err != nil {
		return identity.Session{}, err
	}
	if ip != nil {
		if parsed := net.ParseIP(*ip); parsed != nil {
			row.IP = &parsed
		}
	}
	return row, nil
}
