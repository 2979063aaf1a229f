package challenge

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

// Store abstracts challenge persistence.
type Store interface {
	// InsertChallenge persists a freshly issued challenge.
	InsertChallenge(ctx context.Context, c identity.Challenge) error

	// LatestUnconsumedChallenge returns the newest (by created_at) challenge for
	// scope whose consumed_at is NULL, regardless of expiry. Missing rows
	// return an error matching identity.ErrNotFound.
	LatestUnconsumedChallenge(ctx context.Context, scope identity.ChallengeScope) (identity.Challenge, error)

	// ConsumeChallenge sets consumed_at iff the row is still unconsumed and
	// unexpired at now. It reports whether this call consumed it.
	ConsumeChallenge(ctx context.Context, id string, now time.Time) (bool, error)
}
