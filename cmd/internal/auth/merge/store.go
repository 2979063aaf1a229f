package merge

import (
	"context"

	"userbase/cmd/identity"
)

// Store performs the atomic reassignment.
type Store interface {
	// CountDependents counts what a merge of userID would carry over.
	CountDependents(ctx context.Context, userID string) (identity.MergeCounts, error)

	// MergeUsers moves every identity, auth method, session, post and vote of
	// the source user to the target, marks the source merged and consumes the
	// challenge, all or nothing. An unusable challenge yields
	// identity.ErrNoActiveChallenge.
	MergeUsers(ctx context.Context, in identity.MergeInput) (identity.MergeCounts, error)
}
