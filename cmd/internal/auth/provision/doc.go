// Package provision finds or creates the account behind a verified credential
// and opens a session for it.
//
// All entry points (wallet bootstrap, email magic link, session exchange)
// share one algorithm: short-circuit on a valid refresh token, look up the
// credential, reuse its owner with fill-in-blank profile backfill, or create
// a new account with a freshly allocated handle. Account creation is a single
// store transaction.
package provision
