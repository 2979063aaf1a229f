package memstore

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

func (s *Store) CountDependents(ctx context.Context, userID string) (identity.MergeCounts, error) {
	if err := ctx.Err(); err != nil {
		return identity.MergeCounts{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(userID), nil
}

func (s *Store) countLocked(userID string) identity.MergeCounts {
	var c identity.MergeCounts
	for _, v := range s.identities {
		if v.UserID == userID {
			c.Identities++
		}
	}
	for _, v := range s.authMethods {
		if v.UserID == userID {
			c.AuthMethods++
		}
	}
	for _, v := range s.sessions {
		if v.UserID == userID {
			c.Sessions++
		}
	}
	for _, owner := range s.posts {
		if owner == userID {
			c.Posts++
		}
	}
	for _, owner := range s.votes {
		if owner == userID {
			c.Votes++
		}
	}
	return c
}

// MergeUsers reassigns everything owned by the source user to the target,
// neutralizes the source and consumes the merge challenge, all under one lock.
// Every precondition is checked before the first write.
func (s *Store) MergeUsers(ctx context.Context, in identity.MergeInput) (identity.MergeCounts, error) {
	const op = "merge.MergeUsers"

	if err := ctx.Err(); err != nil {
		return identity.MergeCounts{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.users[in.SourceUserID]
	if !ok {
		return identity.MergeCounts{}, identity.NotFoundError{Op: op, Resource: "source_user"}
	}
	dst, ok := s.users[in.TargetUserID]
	if !ok {
		return identity.MergeCounts{}, identity.NotFoundError{Op: op, Resource: "target_user"}
	}
	if src.Status == identity.StatusMerged || dst.Status != identity.StatusActive {
		return identity.MergeCounts{}, identity.OpError{Op: op, Kind: identity.ErrNotActive, Msg: "source or target user is not mergeable"}
	}
	c, ok := s.challenges[in.ChallengeID]
	if !ok || c.ConsumedAt != nil || !c.ExpiresAt.After(now) {
		return identity.MergeCounts{}, identity.ErrNoActiveChallenge
	}

	counts := s.countLocked(in.SourceUserID)

	targetPrimary := map[identity.IdentityType]bool{}
	for _, v := range s.identities {
		if v.UserID == in.TargetUserID && v.IsPrimary {
			targetPrimary[v.Type] = true
		}
	}
	for id, v := range s.identities {
		if v.UserID != in.SourceUserID {
			continue
		}
		v.UserID = in.TargetUserID
		if targetPrimary[v.Type] {
			v.IsPrimary = false
		}
		s.identities[id] = v
	}
	for id, v := range s.authMethods {
		if v.UserID == in.SourceUserID {
			v.UserID = in.TargetUserID
			s.authMethods[id] = v
		}
	}
	for id, v := range s.sessions {
		if v.UserID == in.SourceUserID {
			v.UserID = in.TargetUserID
			s.sessions[id] = v
		}
	}
	for id, owner := range s.posts {
		if owner == in.SourceUserID {
			s.posts[id] = in.TargetUserID
		}
	}
	for id, owner := range s.votes {
		if owner == in.SourceUserID {
			s.votes[id] = in.TargetUserID
		}
	}

	if dst.DisplayName == nil {
		dst.DisplayName = clonePtr(src.DisplayName)
	}
	if dst.AvatarURL == nil {
		dst.AvatarURL = clonePtr(src.AvatarURL)
	}
	dst.UpdatedAt = now
	s.users[dst.ID] = dst

	target := in.TargetUserID
	src.Status = identity.StatusMerged
	src.MergedIntoUserID = &target
	src.Handle = nil
	src.UpdatedAt = now
	s.users[src.ID] = src

	s.consumeChallengeLocked(in.ChallengeID, now)
	return counts, nil
}
