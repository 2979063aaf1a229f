package magiclink

import (
	"errors"

	"userbase/cmd/identity"
)

var (
	// ErrInvalidMagicLink covers unknown, consumed and expired tokens alike.
	ErrInvalidMagicLink = identity.NewCoded(identity.ErrUnauthenticated, "invalid_magic_link")

	// ErrInvalidEmail is returned when the requested address cannot receive a link.
	ErrInvalidEmail = identity.NewCoded(identity.ErrInvalidInput, "invalid_email")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("magiclink: invalid config")
)
