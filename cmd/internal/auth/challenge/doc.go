// Package challenge issues and consumes short-lived, single-use signing
// challenges.
//
// A challenge is scoped to (purpose, user, identity type, identifier). Lookup
// and consumption are separate steps: callers look up the active challenge,
// verify a signature over its message, and only then consume it with a
// conditional update that succeeds at most once. A failed verification never
// burns the challenge.
package challenge
