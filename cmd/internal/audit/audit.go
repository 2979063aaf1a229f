// Package audit records security-relevant auth events and answers the
// windowed counts the API throttles on.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/pgutil"
)

// Actions written by the auth API.
const (
	ActionBootstrapSuccess   = "auth.bootstrap.success"
	ActionBootstrapFailed    = "auth.bootstrap.failed"
	ActionMagicLinkRequested = "auth.magic_link.requested"
	ActionMagicLinkConsumed  = "auth.magic_link.consumed"
	ActionLinkSuccess        = "auth.link.success"
	ActionMergeSuccess       = "auth.merge.success"
	ActionMergeFailed        = "auth.merge.failed"
	ActionLogout             = "auth.logout"
	ActionLogoutAll          = "auth.logout_all"
	ActionRateLimited        = "auth.rate_limited"
)

// Entry is one audit row. Empty strings are stored as NULL.
type Entry struct {
	Action    string
	UserID    string
	SessionID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// Log persists entries.
type Log interface {
	Record(ctx context.Context, e Entry) error
	// CountByIP counts entries with action from ip at or after since.
	CountByIP(ctx context.Context, action string, ip net.IP, since time.Time) (int, error)
}

// PostgresLog writes to the audit_log table.
type PostgresLog struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresLog returns a Log backed by schema.audit_log.
func NewPostgresLog(pool *pgxpool.Pool, schema string) (*PostgresLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	s, err := pgutil.Schema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresLog{pool: pool, table: pgutil.Ident(s, "audit_log")}, nil
}

func (l *PostgresLog) Record(ctx context.Context, e Entry) error {
	const op = "audit.Record"

	action := strings.TrimSpace(e.Action)
	if action == "" {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "action is required"}
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	var ip any
	if e.IP != nil {
		ip = e.IP.String()
	}
	meta := "{}"
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "meta is not JSON"}
		}
		meta = string(b)
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO `+l.table+` (user_id, session_id, action, created_at, ip, user_agent, meta)
		VALUES ($1, $2, $3, $4, $5::inet, $6, $7::jsonb)
	`, nullable(e.UserID), nullable(e.SessionID), action, e.At, ip, nullable(e.UserAgent), meta)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	return nil
}

func (l *PostgresLog) CountByIP(ctx context.Context, action string, ip net.IP, since time.Time) (int, error) {
	const op = "audit.CountByIP"
	if ip == nil {
		return 0, nil
	}

	var n int
	err := l.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM `+l.table+`
		WHERE action = $1
		  AND ip = $2::inet
		  AND created_at >= $3
	`, action, ip.String(), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
	}
	return n, nil
}

func nullable(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
