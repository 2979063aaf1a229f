package hive

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

// ErrInvalidSignature is returned for signatures that cannot be decoded.
var ErrInvalidSignature = errors.New("hive: invalid signature")

const (
	compactLen = 65
	plainLen   = 64

	// Recovery header range: 27 + recid (+4 when the key is compressed).
	minHeader = 27
	maxHeader = 34
)

// Signature is a decoded Hive signature: either 65-byte recoverable
// (header || r || s) or 64-byte plain (r || s).
type Signature struct {
	raw []byte
}

// ParseSignature decodes hex (optionally 0x-prefixed) into a Signature.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Signature{}, errors.Wrap(ErrInvalidSignature, "hex")
	}
	switch len(raw) {
	case compactLen:
		if raw[0] < minHeader || raw[0] > maxHeader {
			return Signature{}, errors.Wrap(ErrInvalidSignature, "recovery header")
		}
	case plainLen:
	default:
		return Signature{}, errors.Wrapf(ErrInvalidSignature, "length %d", len(raw))
	}
	return Signature{raw: raw}, nil
}

// Recoverable reports whether the signature carries a recovery header.
func (s Signature) Recoverable() bool { return len(s.raw) == compactLen }

// RecoverPublicKey recovers the signing key from a recoverable signature.
func (s Signature) RecoverPublicKey(digest []byte) (*secp256k1.PublicKey, error) {
	if !s.Recoverable() {
		return nil, errors.Wrap(ErrInvalidSignature, "not recoverable")
	}
	pub, _, err := ecdsa.RecoverCompact(s.raw, digest)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return pub, nil
}

// Verify checks the signature over digest against pub. Recoverable signatures
// are checked by recovering the key and comparing; plain ones by ECDSA verify.
func (s Signature) Verify(digest []byte, pub *secp256k1.PublicKey) bool {
	if pub == nil {
		return false
	}
	if s.Recoverable() {
		got, err := s.RecoverPublicKey(digest)
		return err == nil && got.IsEqual(pub)
	}

	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(s.raw[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := sc.SetByteSlice(s.raw[32:]); overflow || sc.IsZero() {
		return false
	}
	return ecdsa.NewSignature(&r, &sc).Verify(digest, pub)
}

// Sign produces a 65-byte recoverable signature in Hive's format (compressed key).
// It exists for fixtures and tooling; the service never holds private keys.
func Sign(priv *secp256k1.PrivateKey, message string) string {
	return hex.EncodeToString(ecdsa.SignCompact(priv, MessageDigest(message), true))
}
