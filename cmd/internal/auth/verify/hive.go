package verify

import (
	"context"
	"errors"
	"strings"

	"userbase/cmd/identity"
	"userbase/cmd/internal/hive"
)

// PostingKeyFetcher returns the current on-chain posting keys of an account.
type PostingKeyFetcher interface {
	PostingKeys(ctx context.Context, account string) ([]string, error)
}

// Hive verifies posting-key signatures. A valid signature is not enough: the
// signing key must also be in the account's posting authority right now.
type Hive struct {
	accounts PostingKeyFetcher
}

func NewHive(accounts PostingKeyFetcher) *Hive { return &Hive{accounts: accounts} }

func (h *Hive) Type() identity.IdentityType { return identity.TypeHive }

func (h *Hive) Tier() TrustTier { return TierCryptographic }

func (h *Hive) Verify(ctx context.Context, p Proof) (Result, error) {
	const t = identity.TypeHive

	claimed := strings.TrimSpace(p.PublicKey)
	if claimed == "" {
		return Result{}, reject(t, ErrMalformedPublicKey, errors.New("public key is required"))
	}
	pub, err := hive.ParsePublicKey(claimed)
	if err != nil {
		return Result{}, reject(t, ErrMalformedPublicKey, err)
	}
	sig, err := hive.ParseSignature(p.Signature)
	if err != nil {
		return Result{}, reject(t, ErrMalformedSignature, err)
	}
	if !sig.Verify(hive.MessageDigest(p.Message), pub) {
		return Result{}, reject(t, ErrSignatureMismatch, nil)
	}

	keys, err := h.accounts.PostingKeys(ctx, p.Identifier)
	if err != nil {
		if errors.Is(err, hive.ErrAccountNotFound) {
			return Result{}, reject(t, ErrAccountNotFound, err)
		}
		return Result{}, reject(t, ErrChainUnavailable, err)
	}
	for _, k := range keys {
		onChain, err := hive.ParsePublicKey(k)
		if err != nil {
			continue
		}
		if onChain.IsEqual(pub) {
			return Result{Metadata: map[string]any{
				"public_key": hive.EncodePublicKey(pub, ""),
				"authority":  "posting",
			}}, nil
		}
	}
	return Result{}, reject(t, ErrKeyNotAuthorized, nil)
}
