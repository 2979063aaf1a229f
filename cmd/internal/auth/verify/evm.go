package verify

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"

	"userbase/cmd/identity"
)

// EVM verifies EIP-191 personal_sign signatures by address recovery.
type EVM struct{}

func NewEVM() *EVM { return &EVM{} }

func (EVM) Type() identity.IdentityType { return identity.TypeEVM }

func (EVM) Tier() TrustTier { return TierCryptographic }

func (EVM) Verify(_ context.Context, p Proof) (Result, error) {
	const t = identity.TypeEVM

	addr, err := RecoverAddress(p.Message, p.Signature)
	if err != nil {
		return Result{}, reject(t, ErrMalformedSignature, err)
	}
	if !strings.EqualFold(addr, p.Identifier) {
		return Result{}, reject(t, ErrSignatureMismatch, nil)
	}
	return Result{Metadata: map[string]any{
		"checksum_address": identity.ChecksumAddress(addr),
	}}, nil
}

// PersonalSignHash is keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalSignHash(message string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	return identity.Keccak256([]byte(prefix), []byte(message))
}

// RecoverAddress returns the lowercase 0x address that produced sigHex over
// message. sigHex is 65 bytes r||s||v with v in {0, 1, 27, 28}.
func RecoverAddress(message, sigHex string) (string, error) {
	s := strings.TrimSpace(sigHex)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", errors.Wrap(err, "decode signature")
	}
	if len(raw) != 65 {
		return "", errors.Errorf("signature must be 65 bytes, got %d", len(raw))
	}

	v := raw[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", errors.Errorf("invalid recovery id %d", raw[64])
	}

	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], raw[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalSignHash(message))
	if err != nil {
		return "", errors.Wrap(err, "recover public key")
	}
	return AddressOf(pub), nil
}

// AddressOf derives the lowercase 0x address of pub.
func AddressOf(pub *secp256k1.PublicKey) string {
	h := identity.Keccak256(pub.SerializeUncompressed()[1:])
	return "0x" + hex.EncodeToString(h[12:])
}
