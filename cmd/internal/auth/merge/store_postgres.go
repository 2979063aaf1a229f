package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/pgutil"
)

// PostgresStore runs merges as a single PostgreSQL transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("merge: nil pool")
	}
	s, err := pgutil.Schema(schema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, schema: s}, nil
}

func (s *PostgresStore) t(name string) string { return pgutil.Ident(s.schema, name) }

// CountDependents counts the rows owned by userID.
func (s *PostgresStore) CountDependents(ctx context.Context, userID string) (identity.MergeCounts, error) {
	c, err := s.count(ctx, s.pool, userID)
	if err != nil {
		return identity.MergeCounts{}, fmt.Errorf("merge.CountDependents: %w: %w", identity.ErrDependency, err)
	}
	return c, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) count(ctx context.Context, q querier, userID string) (identity.MergeCounts, error) {
	var c identity.MergeCounts
	err := q.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM `+s.t("identities")+` WHERE user_id = $1),
		   (SELECT count(*) FROM `+s.t("auth_methods")+` WHERE user_id = $1),
		   (SELECT count(*) FROM `+s.t("sessions")+` WHERE user_id = $1),
		   (SELECT count(*) FROM `+s.t("soft_posts")+` WHERE user_id = $1),
		   (SELECT count(*) FROM `+s.t("soft_votes")+` WHERE user_id = $1)`,
		userID,
	).Scan(&c.Identities, &c.AuthMethods, &c.Sessions, &c.Posts, &c.Votes)
	return c, err
}

// MergeUsers performs the reassignment in one transaction.
func (s *PostgresStore) MergeUsers(ctx context.Context, in identity.MergeInput) (identity.MergeCounts, error) {
	const op = "merge.MergeUsers"

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return identity.MergeCounts{}, dependency(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock both users in id order so opposite merges cannot deadlock.
	ids := []string{in.SourceUserID, in.TargetUserID}
	sort.Strings(ids)
	status := map[string]string{}
	rows, err := tx.Query(ctx,
		`SELECT id, status FROM `+s.t("users")+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return identity.MergeCounts{}, dependency(op, err)
	}
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			rows.Close()
			return identity.MergeCounts{}, dependency(op, err)
		}
		status[id] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return identity.MergeCounts{}, dependency(op, err)
	}

	srcStatus, ok := status[in.SourceUserID]
	if !ok {
		return identity.MergeCounts{}, identity.NotFoundError{Op: op, Resource: "source_user"}
	}
	dstStatus, ok := status[in.TargetUserID]
	if !ok {
		return identity.MergeCounts{}, identity.NotFoundError{Op: op, Resource: "target_user"}
	}
	if srcStatus == string(identity.StatusMerged) || dstStatus != string(identity.StatusActive) {
		return identity.MergeCounts{}, identity.OpError{Op: op, Kind: identity.ErrNotActive, Msg: "source or target user is not mergeable"}
	}

	var live bool
	err = tx.QueryRow(ctx,
		`SELECT consumed_at IS NULL AND expires_at > $2
		   FROM `+s.t("auth_challenges")+`
		  WHERE id = $1
		  FOR UPDATE`,
		in.ChallengeID, now,
	).Scan(&live)
	if err != nil && !pgutil.IsNoRows(err) {
		return identity.MergeCounts{}, dependency(op, err)
	}
	if !live {
		return identity.MergeCounts{}, identity.ErrNoActiveChallenge
	}

	counts, err := s.count(ctx, tx, in.SourceUserID)
	if err != nil {
		return identity.MergeCounts{}, dependency(op, err)
	}

	stmts := []struct {
		sql  string
		args []any
	}{
		// Demote source primaries whose type the target already has a primary for.
		{`UPDATE ` + s.t("identities") + ` AS i
		     SET is_primary = false
		   WHERE i.user_id = $1 AND i.is_primary
		     AND EXISTS (SELECT 1 FROM ` + s.t("identities") + ` AS t
		                  WHERE t.user_id = $2 AND t.type = i.type AND t.is_primary)`,
			[]any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("identities") + ` SET user_id = $2 WHERE user_id = $1`, []any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("auth_methods") + ` SET user_id = $2 WHERE user_id = $1`, []any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("sessions") + ` SET user_id = $2 WHERE user_id = $1`, []any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("soft_posts") + ` SET user_id = $2 WHERE user_id = $1`, []any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("soft_votes") + ` SET user_id = $2 WHERE user_id = $1`, []any{in.SourceUserID, in.TargetUserID}},
		{`UPDATE ` + s.t("users") + ` AS d
		     SET display_name = COALESCE(d.display_name, src.display_name),
		         avatar_url = COALESCE(d.avatar_url, src.avatar_url),
		         updated_at = $3
		    FROM ` + s.t("users") + ` AS src
		   WHERE d.id = $2 AND src.id = $1`,
			[]any{in.SourceUserID, in.TargetUserID, now}},
		{`UPDATE ` + s.t("users") + `
		     SET status = 'merged', merged_into_user_id = $2, handle = NULL, updated_at = $3
		   WHERE id = $1`,
			[]any{in.SourceUserID, in.TargetUserID, now}},
		{`UPDATE ` + s.t("auth_challenges") + ` SET consumed_at = $2 WHERE id = $1`, []any{in.ChallengeID, now}},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return identity.MergeCounts{}, dependency(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return identity.MergeCounts{}, dependency(op, err)
	}
	return counts, nil
}

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, identity.ErrDependency, err)
}
