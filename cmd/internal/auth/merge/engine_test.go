package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/authtest"
	"userbase/cmd/internal/auth/verify"
	"userbase/cmd/internal/memstore"
)

type fixture struct {
	engine   *Engine
	st       *memstore.Store
	accounts authtest.Accounts
	alerts   *authtest.Alerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	return newFixtureWithStore(t, st, st)
}

func newFixtureWithStore(t *testing.T, st *memstore.Store, ms Store) *fixture {
	t.Helper()
	f := &fixture{st: st, accounts: authtest.Accounts{}, alerts: &authtest.Alerts{}}
	e, err := NewEngine(ms, st, authtest.Challenges(t, st), authtest.Registry(f.accounts), WithAlerter(f.alerts))
	require.NoError(t, err)
	f.engine = e
	return f
}

// twoAccounts returns a target (actor) and a source owning Hive "alice".
func (f *fixture) twoAccounts(t *testing.T) (target, source identity.User, key authtest.Key) {
	t.Helper()
	target = authtest.HiveUser(t, f.st, "bob")
	source = authtest.HiveUser(t, f.st, "alice")
	key = authtest.NewKey(t)
	f.accounts["alice"] = []string{key.HivePublic()}
	return target, source, key
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	target, source, _ := f.twoAccounts(t)
	f.st.AddPost(source.ID)
	f.st.AddVote(source.ID)
	f.st.AddVote(source.ID)

	p, err := f.engine.Preview(context.Background(), target.ID, identity.TypeHive, "alice")
	require.NoError(t, err)
	require.True(t, p.Exists)
	require.False(t, p.OwnedByActor)
	require.Equal(t, source.ID, p.OwnerUserID)
	require.Equal(t, identity.MergeCounts{Identities: 1, Posts: 1, Votes: 2}, p.Counts)

	mine, err := f.engine.Preview(context.Background(), target.ID, identity.TypeHive, "bob")
	require.NoError(t, err)
	require.True(t, mine.OwnedByActor)

	none, err := f.engine.Preview(context.Background(), target.ID, identity.TypeHive, "nobody")
	require.NoError(t, err)
	require.False(t, none.Exists)
}

func TestExecute_MovesEverything(t *testing.T) {
	f := newFixture(t)
	target, source, key := f.twoAccounts(t)
	post := f.st.AddPost(source.ID)
	f.st.AddVote(source.ID)
	name := "Alice"
	_, err := f.st.BackfillProfile(context.Background(), source.ID, identity.ProfilePatch{DisplayName: &name}, time.Now())
	require.NoError(t, err)

	now := time.Now().UTC()
	ch, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "alice", now)
	require.NoError(t, err)

	res, err := f.engine.Execute(context.Background(), Input{
		ActorUserID: target.ID,
		Type:        identity.TypeHive,
		Identifier:  "alice",
		Signature:   key.HiveSign(ch.Message),
		PublicKey:   key.HivePublic(),
		Now:         now,
	})
	require.NoError(t, err)
	require.Equal(t, source.ID, res.SourceUserID)
	require.Equal(t, target.ID, res.TargetUserID)
	require.Equal(t, 1, res.Moved.Identities)

	ident, err := f.st.FindIdentity(context.Background(), identity.TypeHive, "alice")
	require.NoError(t, err)
	require.Equal(t, target.ID, ident.UserID)
	require.False(t, ident.IsPrimary, "bob stays the primary hive identity")
	require.Equal(t, target.ID, f.st.PostOwner(post))

	src, err := f.st.GetUserByID(context.Background(), source.ID)
	require.NoError(t, err)
	require.Equal(t, identity.StatusMerged, src.Status)
	require.Equal(t, target.ID, *src.MergedIntoUserID)
	require.Nil(t, src.Handle)

	dst, err := f.st.GetUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", *dst.DisplayName)

	rec, ok := f.st.ChallengeRecord(ch.ID)
	require.True(t, ok)
	require.NotNil(t, rec.ConsumedAt)
	require.Empty(t, f.alerts.Events())
}

func TestExecute_SameUserRejected(t *testing.T) {
	f := newFixture(t)
	target, _, _ := f.twoAccounts(t)

	_, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "bob", time.Now())
	require.ErrorIs(t, err, ErrSameUser)
	require.ErrorIs(t, err, identity.ErrConflict)

	_, err = f.engine.Execute(context.Background(), Input{ActorUserID: target.ID, Type: identity.TypeHive, Identifier: "bob"})
	require.ErrorIs(t, err, ErrSameUser)
}

func TestExecute_SelfReportedRejected(t *testing.T) {
	f := newFixture(t)
	target, _, _ := f.twoAccounts(t)

	_, err := f.engine.Execute(context.Background(), Input{ActorUserID: target.ID, Type: identity.TypeFarcaster, Identifier: "5"})
	require.ErrorIs(t, err, ErrSelfReportedMerge)
	require.ErrorIs(t, err, identity.ErrForbidden)
}

func TestExecute_UnknownIdentity(t *testing.T) {
	f := newFixture(t)
	target, _, _ := f.twoAccounts(t)

	_, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "nobody", time.Now())
	require.True(t, identity.IsNotFound(err))
}

func TestExecute_WrongKeyLeavesChallengeAndAccounts(t *testing.T) {
	f := newFixture(t)
	target, source, _ := f.twoAccounts(t)
	rogue := authtest.NewKey(t)
	now := time.Now().UTC()

	ch, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "alice", now)
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), Input{
		ActorUserID: target.ID,
		Type:        identity.TypeHive,
		Identifier:  "alice",
		Signature:   rogue.HiveSign(ch.Message),
		PublicKey:   rogue.HivePublic(),
		Now:         now,
	})
	require.ErrorIs(t, err, verify.ErrKeyNotAuthorized)

	rec, _ := f.st.ChallengeRecord(ch.ID)
	require.Nil(t, rec.ConsumedAt)
	src, err := f.st.GetUserByID(context.Background(), source.ID)
	require.NoError(t, err)
	require.Equal(t, identity.StatusActive, src.Status)
}

func TestExecute_ChallengeCannotBeReplayed(t *testing.T) {
	f := newFixture(t)
	target, _, key := f.twoAccounts(t)
	now := time.Now().UTC()

	ch, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "alice", now)
	require.NoError(t, err)
	in := Input{
		ActorUserID: target.ID,
		Type:        identity.TypeHive,
		Identifier:  "alice",
		Signature:   key.HiveSign(ch.Message),
		PublicKey:   key.HivePublic(),
		Now:         now,
	}
	_, err = f.engine.Execute(context.Background(), in)
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), in)
	require.ErrorIs(t, err, ErrSameUser)
}

type failingMerge struct {
	*memstore.Store
}

func (failingMerge) MergeUsers(context.Context, identity.MergeInput) (identity.MergeCounts, error) {
	return identity.MergeCounts{}, fmt.Errorf("merge.MergeUsers: %w: %w", identity.ErrDependency, errors.New("deadlock detected"))
}

func TestExecute_StoreFailureAlertsAndKeepsChallenge(t *testing.T) {
	st := memstore.New()
	f := newFixtureWithStore(t, st, failingMerge{st})
	target, _, key := f.twoAccounts(t)
	now := time.Now().UTC()

	ch, err := f.engine.IssueChallenge(context.Background(), target.ID, identity.TypeHive, "alice", now)
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), Input{
		ActorUserID: target.ID,
		Type:        identity.TypeHive,
		Identifier:  "alice",
		Signature:   key.HiveSign(ch.Message),
		PublicKey:   key.HivePublic(),
		Now:         now,
	})
	require.ErrorIs(t, err, identity.ErrDependency)
	require.Equal(t, []string{"merge_failed"}, f.alerts.Events())

	rec, _ := f.st.ChallengeRecord(ch.ID)
	require.Nil(t, rec.ConsumedAt)
}
