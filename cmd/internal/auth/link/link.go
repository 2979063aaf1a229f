// Package link binds additional identities to a logged-in user.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/verify"
)

// maxMetadataBytes bounds client-supplied identity metadata once encoded.
const maxMetadataBytes = 4096

var (
	// ErrChallengeNotRequired is returned when a challenge is requested for a self-reported type.
	ErrChallengeNotRequired = identity.NewCoded(identity.ErrInvalidInput, "challenge_not_required")

	// ErrMetadataTooLarge rejects oversized client metadata.
	ErrMetadataTooLarge = identity.NewCoded(identity.ErrInvalidInput, "metadata_too_large")
)

// Challenges is the subset of challenge.Service used here.
type Challenges interface {
	Issue(ctx context.Context, scope identity.ChallengeScope, now time.Time) (challenge.Issued, error)
	Prove(ctx context.Context, scope identity.ChallengeScope, v verify.IdentityVerifier, p verify.Proof, now time.Time) (identity.Challenge, verify.Result, error)
	Consume(ctx context.Context, id string, now time.Time) error
}

// Input is a link request from an authenticated user.
type Input struct {
	ActorUserID string
	Type        identity.IdentityType
	Identifier  string
	Signature   string
	PublicKey   string
	// Metadata is client-supplied; verifier metadata overrides matching keys.
	Metadata map[string]any
	Now      time.Time
}

// Service links identities.
type Service struct {
	users      identity.Store
	challenges Challenges
	verifiers  *verify.Registry
	log        *slog.Logger
}

// NewService constructs a Service.
func NewService(users identity.Store, challenges Challenges, verifiers *verify.Registry, log *slog.Logger) (*Service, error) {
	if users == nil || challenges == nil || verifiers == nil {
		return nil, fmt.Errorf("link: missing dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, challenges: challenges, verifiers: verifiers, log: log}, nil
}

// IssueChallenge issues a link challenge scoped to actor and the identity.
func (s *Service) IssueChallenge(ctx context.Context, actorUserID string, t identity.IdentityType, identifier string, now time.Time) (challenge.Issued, error) {
	v, err := s.verifiers.For(t)
	if err != nil {
		return challenge.Issued{}, err
	}
	if v.Tier() != verify.TierCryptographic {
		return challenge.Issued{}, ErrChallengeNotRequired
	}
	id, err := identity.NormalizeIdentifier(t, identifier)
	if err != nil {
		return challenge.Issued{}, err
	}
	if err := s.activeUser(ctx, actorUserID); err != nil {
		return challenge.Issued{}, err
	}
	return s.challenges.Issue(ctx, scope(actorUserID, t, id), now)
}

// Link proves control of the identity and binds it to the actor.
// An identity owned by another user yields identity.ConflictError carrying
// the owner, which clients use to offer a merge.
func (s *Service) Link(ctx context.Context, in Input) (identity.UpsertIdentityResult, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	v, err := s.verifiers.For(in.Type)
	if err != nil {
		return identity.UpsertIdentityResult{}, err
	}
	id, err := identity.NormalizeIdentifier(in.Type, in.Identifier)
	if err != nil {
		return identity.UpsertIdentityResult{}, err
	}
	if err := checkMetadata(in.Metadata); err != nil {
		return identity.UpsertIdentityResult{}, err
	}
	if err := s.activeUser(ctx, in.ActorUserID); err != nil {
		return identity.UpsertIdentityResult{}, err
	}

	var res verify.Result
	if v.Tier() == verify.TierCryptographic {
		var c identity.Challenge
		c, res, err = s.challenges.Prove(ctx, scope(in.ActorUserID, in.Type, id), v, verify.Proof{
			Signature: in.Signature,
			PublicKey: in.PublicKey,
		}, now)
		if err != nil {
			return identity.UpsertIdentityResult{}, err
		}
		if err := s.challenges.Consume(ctx, c.ID, now); err != nil {
			return identity.UpsertIdentityResult{}, err
		}
	} else {
		res, err = v.Verify(ctx, verify.Proof{Identifier: id})
		if err != nil {
			return identity.UpsertIdentityResult{}, err
		}
	}

	out, err := s.users.UpsertIdentity(ctx, identity.UpsertIdentityInput{
		UserID:     in.ActorUserID,
		Type:       in.Type,
		Identifier: id,
		Metadata:   mergeMetadata(in.Metadata, res.Metadata),
		Now:        now,
	})
	if err != nil {
		if ce, ok := identity.AsConflict(err); ok {
			s.log.Info("link.conflict", "user_id", in.ActorUserID, "type", string(in.Type), "owner_user_id", ce.OwnerUserID)
		}
		return identity.UpsertIdentityResult{}, err
	}

	s.log.Info("link.ok",
		"user_id", in.ActorUserID,
		"type", string(in.Type),
		"created", out.Created,
		"tier", v.Tier().String(),
	)
	return out, nil
}

func (s *Service) activeUser(ctx context.Context, userID string) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Status != identity.StatusActive {
		return identity.OpError{Op: "link.activeUser", Kind: identity.ErrNotActive, Msg: "account is " + string(u.Status)}
	}
	return nil
}

func scope(userID string, t identity.IdentityType, id string) identity.ChallengeScope {
	return identity.ChallengeScope{Purpose: identity.PurposeLink, UserID: &userID, Type: t, Identifier: id}
}

func checkMetadata(m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return identity.OpError{Op: "link.checkMetadata", Kind: identity.ErrInvalidInput, Msg: "metadata is not JSON"}
	}
	if len(b) > maxMetadataBytes {
		return ErrMetadataTooLarge
	}
	return nil
}

func mergeMetadata(client, verified map[string]any) map[string]any {
	if len(client) == 0 && len(verified) == 0 {
		return nil
	}
	out := make(map[string]any, len(client)+len(verified))
	for k, v := range client {
		out[k] = v
	}
	for k, v := range verified {
		out[k] = v
	}
	return out
}
