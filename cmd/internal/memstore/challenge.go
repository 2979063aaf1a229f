package memstore

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

func (s *Store) InsertChallenge(ctx context.Context, c identity.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.UserID != nil {
		if _, ok := s.users[*c.UserID]; !ok {
			return identity.NotFoundError{Op: "challenge.InsertChallenge", Resource: "user"}
		}
	}
	c.UserID = clonePtr(c.UserID)
	s.challenges[c.ID] = c
	return nil
}

func (s *Store) LatestUnconsumedChallenge(ctx context.Context, scope identity.ChallengeScope) (identity.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return identity.Challenge{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  identity.Challenge
		found bool
	)
	for _, c := range s.challenges {
		if c.ConsumedAt != nil || !sameScope(c.ChallengeScope, scope) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) || (c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best, found = c, true
		}
	}
	if !found {
		return identity.Challenge{}, identity.NotFoundError{Op: "challenge.LatestUnconsumedChallenge", Resource: "challenge"}
	}
	best.UserID = clonePtr(best.UserID)
	return best, nil
}

func (s *Store) ConsumeChallenge(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeChallengeLocked(id, now), nil
}

func (s *Store) consumeChallengeLocked(id string, now time.Time) bool {
	c, ok := s.challenges[id]
	if !ok || c.ConsumedAt != nil || !c.ExpiresAt.After(now) {
		return false
	}
	t := now
	c.ConsumedAt = &t
	s.challenges[id] = c
	return true
}

func sameScope(a, b identity.ChallengeScope) bool {
	if a.Purpose != b.Purpose || a.Type != b.Type || a.Identifier != b.Identifier {
		return false
	}
	switch {
	case a.UserID == nil && b.UserID == nil:
		return true
	case a.UserID == nil || b.UserID == nil:
		return false
	default:
		return *a.UserID == *b.UserID
	}
}
