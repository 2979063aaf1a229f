package challenge

import (
	"errors"

	"userbase/cmd/identity"
)

var (
	// ErrNoActiveChallenge is returned when no unconsumed challenge matches the
	// scope, or when a consume lost the race to another request.
	ErrNoActiveChallenge = identity.ErrNoActiveChallenge

	// ErrChallengeExpired is returned when the newest unconsumed challenge is past its TTL.
	ErrChallengeExpired = identity.NewCoded(identity.ErrUnauthenticated, "challenge_expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("challenge: invalid config")
)
