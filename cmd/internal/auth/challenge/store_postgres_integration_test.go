package challenge_test

import (
	"context"
	"testing"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/pgtest"
)

func TestPostgresStore_ChallengeLifecycle(t *testing.T) {
	t.Parallel()

	pool := pgtest.Pool(t)
	schema := pgtest.Schema(t, pool)

	ids, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	st, err := challenge.NewPostgresStore(pool, schema)
	if err != nil {
		t.Fatalf("challenge store: %v", err)
	}
	svc, err := challenge.NewService(challenge.DefaultConfig(), st)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	acct, err := ids.CreateAccount(ctx, identity.CreateAccountInput{
		Handle:   "owner",
		Identity: &identity.NewIdentity{Type: identity.TypeHive, Identifier: "owner"},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	uid := acct.User.ID
	scope := identity.ChallengeScope{Purpose: identity.PurposeLink, UserID: &uid, Type: identity.TypeEVM, Identifier: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}
	now := time.Now().UTC()

	iss, err := svc.Issue(ctx, scope, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := svc.Active(ctx, scope, now)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got.ID != iss.ID || got.Message != iss.Message {
		t.Fatalf("active mismatch: %+v", got)
	}

	if err := svc.Consume(ctx, iss.ID, now); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := svc.Consume(ctx, iss.ID, now); err != challenge.ErrNoActiveChallenge {
		t.Fatalf("second consume: got %v", err)
	}

	// Anonymous login scope matches NULL user_id.
	login := identity.ChallengeScope{Purpose: identity.PurposeLogin, Type: identity.TypeHive, Identifier: "alice"}
	if _, err := svc.Issue(ctx, login, now); err != nil {
		t.Fatalf("issue login: %v", err)
	}
	if _, err := svc.Active(ctx, login, now); err != nil {
		t.Fatalf("active login: %v", err)
	}
	if _, err := svc.Active(ctx, login, now.Add(time.Hour)); err != challenge.ErrChallengeExpired {
		t.Fatalf("expected expired, got %v", err)
	}
}
