package challenge

import (
	"context"
	"strings"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/security/token"
)

// Issued is what a client needs to sign.
type Issued struct {
	ID        string
	Message   string
	Nonce     string
	ExpiresAt time.Time
}

// Service issues, looks up and consumes challenges.
type Service struct {
	cfg   Config
	store Store
}

// NewService validates cfg and returns a Service backed by store.
func NewService(cfg Config, store Store) (*Service, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrConfig
	}
	return &Service{cfg: cfg, store: store}, nil
}

// TTL returns the configured challenge lifetime.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue creates a new challenge for scope. Older unconsumed challenges for the
// same scope stay in the table but are shadowed by the newer one.
func (s *Service) Issue(ctx context.Context, scope identity.ChallengeScope, now time.Time) (Issued, error) {
	const op = "challenge.Issue"

	if err := validateScope(op, scope); err != nil {
		return Issued{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Issued{}, err
	}
	nonce, err := token.NewNonceHex(s.cfg.NonceBytes)
	if err != nil {
		return Issued{}, err
	}
	exp := now.Add(s.cfg.TTL)
	msg := RenderMessage(s.cfg.AppName, scope, nonce, now, exp)

	err = s.store.InsertChallenge(ctx, identity.Challenge{
		ID:             id,
		ChallengeScope: scope,
		Nonce:          nonce,
		Message:        msg,
		CreatedAt:      now,
		ExpiresAt:      exp,
	})
	if err != nil {
		return Issued{}, err
	}

	return Issued{ID: id, Message: msg, Nonce: nonce, ExpiresAt: exp}, nil
}

// Active returns the newest unconsumed challenge for scope.
// It does not consume it.
func (s *Service) Active(ctx context.Context, scope identity.ChallengeScope, now time.Time) (identity.Challenge, error) {
	if err := validateScope("challenge.Active", scope); err != nil {
		return identity.Challenge{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	c, err := s.store.LatestUnconsumedChallenge(ctx, scope)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.Challenge{}, ErrNoActiveChallenge
		}
		return identity.Challenge{}, err
	}
	if !c.ExpiresAt.After(now) {
		return identity.Challenge{}, ErrChallengeExpired
	}
	return c, nil
}

// Consume marks the challenge used. It succeeds for exactly one caller.
func (s *Service) Consume(ctx context.Context, id string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ok, err := s.store.ConsumeChallenge(ctx, id, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoActiveChallenge
	}
	return nil
}

func validateScope(op string, scope identity.ChallengeScope) error {
	invalid := func(msg string) error {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: msg}
	}
	if !scope.Purpose.Valid() {
		return invalid("invalid purpose")
	}
	if !scope.Type.Valid() {
		return invalid("unsupported identity type")
	}
	if strings.TrimSpace(scope.Identifier) == "" {
		return invalid("missing identifier")
	}
	hasUser := scope.UserID != nil && strings.TrimSpace(*scope.UserID) != ""
	if scope.Purpose == identity.PurposeLogin && hasUser {
		return invalid("login challenges are anonymous")
	}
	if scope.Purpose != identity.PurposeLogin && !hasUser {
		return invalid("missing user_id")
	}
	return nil
}
