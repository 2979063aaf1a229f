// Package verify proves control of external identities.
//
// Every identity type has one IdentityVerifier, selected once per request from
// a Registry. Verifiers never mutate state: challenge lookup and consumption
// belong to the caller.
package verify

import (
	"context"
	"fmt"

	"userbase/cmd/identity"
)

// TrustTier says how strongly a verifier binds a claim to its owner.
type TrustTier int

const (
	// TierCryptographic verifiers check a signature over a server challenge.
	TierCryptographic TrustTier = iota
	// TierSelfReported verifiers accept the claim as asserted by the client.
	// Self-reported identities may create accounts, log back into them and be
	// linked to the logged-in user, but never authorize a merge. The tier is
	// flagged on the identity (metadata.trust) and on each session.
	TierSelfReported
)

func (t TrustTier) String() string {
	switch t {
	case TierCryptographic:
		return "cryptographic"
	case TierSelfReported:
		return "self_reported"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Proof is what a client submits to prove control of Identifier.
type Proof struct {
	// Identifier must already be normalized for the verifier's type.
	Identifier string
	// Message is the exact challenge text that was signed.
	Message   string
	Signature string
	// PublicKey is the claimed signing key (Hive only).
	PublicKey string
}

// Result carries chain-specific extras worth storing as identity metadata.
type Result struct {
	Metadata map[string]any
}

// IdentityVerifier checks a Proof for one identity type.
type IdentityVerifier interface {
	Type() identity.IdentityType
	Tier() TrustTier
	Verify(ctx context.Context, p Proof) (Result, error)
}

// Registry maps identity types to verifiers.
type Registry struct {
	byType map[identity.IdentityType]IdentityVerifier
}

func NewRegistry(vs ...IdentityVerifier) *Registry {
	r := &Registry{byType: make(map[identity.IdentityType]IdentityVerifier, len(vs))}
	for _, v := range vs {
		if v != nil {
			r.byType[v.Type()] = v
		}
	}
	return r
}

// For returns the verifier for t.
func (r *Registry) For(t identity.IdentityType) (IdentityVerifier, error) {
	if r != nil {
		if v, ok := r.byType[t]; ok {
			return v, nil
		}
	}
	return nil, ErrUnsupportedType
}
