package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	// HMACEnvKey is the env var that carries the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "USERBASE_TOKEN_HMAC_KEY"

	// DefaultOpaqueBytes is the entropy used when callers pass a non-positive size.
	DefaultOpaqueBytes = 32

	// MinHMACKeyBytes is the shortest accepted HMAC key.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher hashes bearer secrets for storage. The zero Hasher uses SHA-256;
// with a Key it uses HMAC-SHA256. Build it once at startup and inject it.
type Hasher struct {
	Key []byte
}

// NewHasher returns a Hasher for key (trimmed). An empty key yields the
// SHA-256 hasher; a non-empty key shorter than minBytes is rejected.
func NewHasher(key string, minBytes int) (Hasher, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return Hasher{}, nil
	}
	if minBytes > 0 && len(k) < minBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{Key: []byte(k)}, nil
}

// Keyed reports whether h uses HMAC.
func (h Hasher) Keyed() bool { return len(h.Key) > 0 }

// Hash returns the 64-char hex digest of secret.
func (h Hasher) Hash(secret string) string {
	if !h.Keyed() {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, h.Key)
}

// NewOpaque returns nBytes of crypto/rand entropy encoded as unpadded base64url.
// The result is safe for cookies, URLs and JSON without escaping.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultOpaqueBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewNonceHex returns nBytes of crypto/rand entropy as lowercase hex.
func NewNonceHex(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 16
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// EqualHex64 compares two 64-char hex digests in constant time.
func EqualHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return hmac.Equal([]byte(a), []byte(b))
}
