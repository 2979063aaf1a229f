package challenge

import (
	"context"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/verify"
)

// Prove checks p against the newest active challenge for scope using v.
// The challenge is returned unconsumed: callers consume it once their own
// write is ready, so a failed proof leaves it usable for a retry.
func (s *Service) Prove(ctx context.Context, scope identity.ChallengeScope, v verify.IdentityVerifier, p verify.Proof, now time.Time) (identity.Challenge, verify.Result, error) {
	c, err := s.Active(ctx, scope, now)
	if err != nil {
		return identity.Challenge{}, verify.Result{}, err
	}
	p.Identifier = scope.Identifier
	p.Message = c.Message
	res, err := v.Verify(ctx, p)
	if err != nil {
		return identity.Challenge{}, verify.Result{}, err
	}
	return c, res, nil
}
