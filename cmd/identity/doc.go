// Package identity implements userbase's account and identity foundation.
//
// It owns the shared data model (users, chain identities, email auth methods,
// sessions, challenges, magic-link tokens), identifier normalization per
// identity type, the error taxonomy every other package maps into, and the
// Postgres-backed identity store.
//
// Other packages import identity for types and error kinds; identity imports
// none of them.
package identity
