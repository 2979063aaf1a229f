package verify

import (
	"context"

	"userbase/cmd/identity"
)

// Farcaster accepts a well-formed fid as self-reported. There is no single
// trusted custody signature to check, so the identity gets TierSelfReported.
type Farcaster struct{}

func NewFarcaster() *Farcaster { return &Farcaster{} }

func (Farcaster) Type() identity.IdentityType { return identity.TypeFarcaster }

func (Farcaster) Tier() TrustTier { return TierSelfReported }

func (Farcaster) Verify(_ context.Context, p Proof) (Result, error) {
	if _, err := identity.NormalizeFID(p.Identifier); err != nil {
		return Result{}, reject(identity.TypeFarcaster, ErrMalformedIdent, err)
	}
	return Result{Metadata: map[string]any{"trust": TierSelfReported.String()}}, nil
}
