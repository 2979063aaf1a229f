package merge_test

import (
	"context"
	"testing"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/merge"
	"userbase/cmd/internal/pgtest"
	"userbase/cmd/internal/pgutil"
)

// Integration tests are opt-in and require USERBASE_DATABASE_URL.

func TestPostgresStore_MergeUsers(t *testing.T) {
	t.Parallel()

	pool := pgtest.Pool(t)
	schema := pgtest.Schema(t, pool)
	ctx := context.Background()

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	mk := func(handle string) identity.User {
		res, err := users.CreateAccount(ctx, identity.CreateAccountInput{
			Handle:   handle,
			Identity: &identity.NewIdentity{Type: identity.TypeHive, Identifier: handle},
		})
		if err != nil {
			t.Fatalf("create %s: %v", handle, err)
		}
		return res.User
	}
	target, source := mk("bob"), mk("alice")

	if _, err := pool.Exec(ctx,
		`INSERT INTO `+pgutil.Ident(schema, "soft_posts")+` (id, user_id, body) VALUES ('p1', $1, 'hi')`,
		source.ID); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	chStore, err := challenge.NewPostgresStore(pool, schema)
	if err != nil {
		t.Fatalf("challenge store: %v", err)
	}
	chSvc, err := challenge.NewService(challenge.DefaultConfig(), chStore)
	if err != nil {
		t.Fatalf("challenge service: %v", err)
	}
	now := time.Now().UTC()
	ch, err := chSvc.Issue(ctx, identity.ChallengeScope{
		Purpose: identity.PurposeMerge, UserID: &source.ID, Type: identity.TypeHive, Identifier: "alice",
	}, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	st, err := merge.NewPostgresStore(pool, schema)
	if err != nil {
		t.Fatalf("merge store: %v", err)
	}
	counts, err := st.MergeUsers(ctx, identity.MergeInput{
		SourceUserID: source.ID, TargetUserID: target.ID, ChallengeID: ch.ID, Now: now,
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if counts.Identities != 1 || counts.Posts != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	ids, err := users.ListIdentities(ctx, target.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	primaries := 0
	for _, i := range ids {
		if i.IsPrimary {
			primaries++
		}
	}
	if len(ids) != 2 || primaries != 1 {
		t.Fatalf("expected 2 identities with 1 primary, got %+v", ids)
	}

	src, err := users.GetUserByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.Status != identity.StatusMerged || src.Handle != nil {
		t.Fatalf("source not neutralized: %+v", src)
	}

	// The consumed challenge cannot drive a second merge.
	if _, err := st.MergeUsers(ctx, identity.MergeInput{
		SourceUserID: source.ID, TargetUserID: target.ID, ChallengeID: ch.ID, Now: now,
	}); err == nil {
		t.Fatalf("expected second merge to fail")
	}
}
