package session

import (
	"context"
	"net"
	"time"

	"userbase/cmd/identity"
)

// Device describes the client that owns a session.
type Device struct {
	UserAgent string
	DeviceID  string
	IP        net.IP

	// Method and Trust describe how the holder authenticated. They ride in
	// the first access token and are not persisted.
	Method string
	Trust  string
}

// Revocation reasons recorded on the session row.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
)

// Store abstracts persistence for session state.
type Store interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, s identity.Session) error

	// SessionByRefreshHash loads a session by refresh-token hash.
	SessionByRefreshHash(ctx context.Context, hash string) (identity.Session, error)

	// SessionByID loads a session row by ID.
	SessionByID(ctx context.Context, id string) (identity.Session, error)

	// RevokeSession revokes a single session. Revoking twice is a no-op.
	RevokeSession(ctx context.Context, now time.Time, id, reason string) error

	// RevokeUserSessions revokes every active session of a user.
	RevokeUserSessions(ctx context.Context, now time.Time, userID, reason string) (int, error)
}
