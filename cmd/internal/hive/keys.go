package hive

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Hive key checksums are defined over RIPEMD-160.
)

// DefaultKeyPrefix is the mainnet public key prefix.
const DefaultKeyPrefix = "STM"

// ErrInvalidPublicKey is returned for keys that fail to decode or checksum.
var ErrInvalidPublicKey = errors.New("hive: invalid public key")

// ParsePublicKey decodes a "STM..." style key: a 3-letter prefix followed by
// base58(compressed pubkey || ripemd160(pubkey)[:4]).
func ParsePublicKey(s string) (*secp256k1.PublicKey, error) {
	if len(s) < 4 {
		return nil, ErrInvalidPublicKey
	}
	for _, r := range s[:3] {
		if r < 'A' || r > 'Z' {
			return nil, errors.Wrap(ErrInvalidPublicKey, "prefix")
		}
	}
	raw := base58.Decode(s[3:])
	if len(raw) != secp256k1.PubKeyBytesLenCompressed+4 {
		return nil, errors.Wrap(ErrInvalidPublicKey, "length")
	}
	key, sum := raw[:secp256k1.PubKeyBytesLenCompressed], raw[secp256k1.PubKeyBytesLenCompressed:]
	if !bytes.Equal(checksum(key), sum) {
		return nil, errors.Wrap(ErrInvalidPublicKey, "checksum")
	}
	pub, err := secp256k1.ParsePubKey(key)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	return pub, nil
}

// EncodePublicKey renders pub with prefix (DefaultKeyPrefix when empty).
func EncodePublicKey(pub *secp256k1.PublicKey, prefix string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	key := pub.SerializeCompressed()
	return prefix + base58.Encode(append(key, checksum(key)...))
}

func checksum(b []byte) []byte {
	h := ripemd160.New()
	_, _ = h.Write(b)
	return h.Sum(nil)[:4]
}

// MessageDigest is the digest Hive wallets sign for arbitrary messages.
func MessageDigest(message string) []byte {
	sum := sha256.Sum256([]byte(message))
	return sum[:]
}
