package session

import (
	"errors"

	"userbase/cmd/identity"
)

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = identity.NewCoded(identity.ErrUnauthenticated, "invalid_token")

	// ErrSessionNotFound is returned when a refresh token does not match any session.
	ErrSessionNotFound = identity.NewCoded(identity.ErrUnauthenticated, "session_not_found")

	// ErrSessionExpired is returned when the session is expired.
	ErrSessionExpired = identity.NewCoded(identity.ErrUnauthenticated, "session_expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = identity.NewCoded(identity.ErrUnauthenticated, "session_revoked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("session: invalid config")
)
