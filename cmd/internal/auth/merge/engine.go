package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/verify"
)

// Challenges is the subset of challenge.Service used here.
type Challenges interface {
	Issue(ctx context.Context, scope identity.ChallengeScope, now time.Time) (challenge.Issued, error)
	Prove(ctx context.Context, scope identity.ChallengeScope, v verify.IdentityVerifier, p verify.Proof, now time.Time) (identity.Challenge, verify.Result, error)
}

// Alerter receives operational failures worth paging on.
type Alerter interface {
	Alert(ctx context.Context, event string, fields map[string]any)
}

// Preview is the dry-run report for a claimed identity.
type Preview struct {
	Exists       bool                 `json:"exists"`
	OwnerUserID  string               `json:"owner_user_id,omitempty"`
	OwnedByActor bool                 `json:"owned_by_actor"`
	Counts       identity.MergeCounts `json:"counts"`
}

// Input is an Execute request. The actor becomes the merge target.
type Input struct {
	ActorUserID string
	Type        identity.IdentityType
	Identifier  string
	Signature   string
	PublicKey   string
	Now         time.Time
}

// Result describes a completed merge.
type Result struct {
	SourceUserID string
	TargetUserID string
	Moved        identity.MergeCounts
}

// Engine runs previews and merges.
type Engine struct {
	store      Store
	users      identity.Store
	challenges Challenges
	verifiers  *verify.Registry
	log        *slog.Logger
	alert      Alerter
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alert = a }
}

// NewEngine constructs an Engine.
func NewEngine(store Store, users identity.Store, challenges Challenges, verifiers *verify.Registry, opts ...Option) (*Engine, error) {
	if store == nil || users == nil || challenges == nil || verifiers == nil {
		return nil, fmt.Errorf("merge: missing dependency")
	}
	e := &Engine{
		store:      store,
		users:      users,
		challenges: challenges,
		verifiers:  verifiers,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Preview reports who owns the identity and what a merge would move. It never writes.
func (e *Engine) Preview(ctx context.Context, actorUserID string, t identity.IdentityType, identifier string) (Preview, error) {
	id, err := identity.NormalizeIdentifier(t, identifier)
	if err != nil {
		return Preview{}, err
	}
	ident, err := e.users.FindIdentity(ctx, t, id)
	if err != nil {
		if identity.IsNotFound(err) {
			return Preview{}, nil
		}
		return Preview{}, err
	}

	p := Preview{
		Exists:       true,
		OwnerUserID:  ident.UserID,
		OwnedByActor: ident.UserID == actorUserID,
	}
	if p.OwnedByActor {
		return p, nil
	}
	p.Counts, err = e.store.CountDependents(ctx, ident.UserID)
	if err != nil {
		return Preview{}, err
	}
	return p, nil
}

// IssueChallenge issues a merge challenge scoped to the identity's current owner.
func (e *Engine) IssueChallenge(ctx context.Context, actorUserID string, t identity.IdentityType, identifier string, now time.Time) (challenge.Issued, error) {
	_, src, id, err := e.resolve(ctx, actorUserID, t, identifier)
	if err != nil {
		return challenge.Issued{}, err
	}
	return e.challenges.Issue(ctx, scope(src, t, id), now)
}

// Execute verifies the proof and merges the identity's owner into the actor.
func (e *Engine) Execute(ctx context.Context, in Input) (Result, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	v, src, id, err := e.resolve(ctx, in.ActorUserID, in.Type, in.Identifier)
	if err != nil {
		return Result{}, err
	}

	c, _, err := e.challenges.Prove(ctx, scope(src, in.Type, id), v, verify.Proof{
		Signature: in.Signature,
		PublicKey: in.PublicKey,
	}, now)
	if err != nil {
		return Result{}, err
	}

	moved, err := e.store.MergeUsers(ctx, identity.MergeInput{
		SourceUserID: src,
		TargetUserID: in.ActorUserID,
		ChallengeID:  c.ID,
		Now:          now,
	})
	if err != nil {
		e.log.Error("merge.fail",
			"source_user_id", src,
			"target_user_id", in.ActorUserID,
			"err", err,
		)
		if e.alert != nil && !errors.Is(err, identity.ErrNoActiveChallenge) {
			e.alert.Alert(ctx, "merge_failed", map[string]any{
				"source_user_id": src,
				"target_user_id": in.ActorUserID,
				"error":          err.Error(),
			})
		}
		return Result{}, err
	}

	e.log.Info("merge.ok",
		"source_user_id", src,
		"target_user_id", in.ActorUserID,
		"identities", moved.Identities,
		"sessions", moved.Sessions,
	)
	return Result{SourceUserID: src, TargetUserID: in.ActorUserID, Moved: moved}, nil
}

// resolve checks the request and returns the verifier, the source user and
// the normalized identifier.
func (e *Engine) resolve(ctx context.Context, actorUserID string, t identity.IdentityType, identifier string) (verify.IdentityVerifier, string, string, error) {
	v, err := e.verifiers.For(t)
	if err != nil {
		return nil, "", "", err
	}
	if v.Tier() != verify.TierCryptographic {
		return nil, "", "", ErrSelfReportedMerge
	}
	id, err := identity.NormalizeIdentifier(t, identifier)
	if err != nil {
		return nil, "", "", err
	}

	ident, err := e.users.FindIdentity(ctx, t, id)
	if err != nil {
		return nil, "", "", err
	}
	if ident.UserID == actorUserID {
		return nil, "", "", ErrSameUser
	}

	actor, err := e.users.GetUserByID(ctx, actorUserID)
	if err != nil {
		return nil, "", "", err
	}
	if actor.Status != identity.StatusActive {
		return nil, "", "", identity.OpError{Op: "merge.resolve", Kind: identity.ErrNotActive, Msg: "account is " + string(actor.Status)}
	}
	return v, ident.UserID, id, nil
}

func scope(sourceUserID string, t identity.IdentityType, id string) identity.ChallengeScope {
	return identity.ChallengeScope{Purpose: identity.PurposeMerge, UserID: &sourceUserID, Type: t, Identifier: id}
}
