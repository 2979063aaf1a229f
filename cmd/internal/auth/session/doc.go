// Package session implements userbase's refresh-token sessions.
//
// A session is created on every successful bootstrap or login. Its refresh
// token is an opaque random string returned to the client exactly once; only
// its hash (from the token.Hasher handed to NewService) is stored. Sessions are never renewed in place: a new login
// issues a new session. Validity is checked on read (revoked_at IS NULL and
// expires_at > now); nothing sweeps expired rows.
//
// For API clients that cannot hold cookies, short-lived PASETO v4.public
// access tokens are minted against a session and re-checked against the
// session row on every validation, so revocation takes effect immediately.
// Tokens carry iss, aud, sub (user), sid, amr (how the session was opened)
// and trust (the verifier tier), with the signing key id in the footer.
package session
