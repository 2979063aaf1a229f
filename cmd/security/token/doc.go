// Package token provides token hashing primitives for userbase.
//
// It is the single source of truth for hashing bearer secrets (session refresh
// tokens, magic-link tokens) before they reach storage.
//
// Modes:
// - Default: SHA-256(token) when the Hasher has no key.
// - Keyed: HMAC-SHA256(token, key) when USERBASE_TOKEN_HMAC_KEY is configured.
// Both produce a stable 64-char lowercase hex digest.
//
// The key is read once at startup into a Hasher; changing the environment of a
// running process does not change digests.
package token
