package memstore

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

func (s *Store) InsertMagicLink(ctx context.Context, t identity.MagicLinkToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.magicLinks {
		if other.TokenHash == t.TokenHash {
			return identity.ConflictError{Op: "magiclink.InsertMagicLink", Field: "magic_link_token"}
		}
	}
	t.RequestedIP = cloneIP(t.RequestedIP)
	s.magicLinks[t.ID] = t
	return nil
}

func (s *Store) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (identity.MagicLinkToken, error) {
	if err := ctx.Err(); err != nil {
		return identity.MagicLinkToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.magicLinks {
		if t.TokenHash != tokenHash {
			continue
		}
		if t.ConsumedAt != nil || !t.ExpiresAt.After(now) {
			break
		}
		at := now
		t.ConsumedAt = &at
		s.magicLinks[id] = t
		return t, nil
	}
	return identity.MagicLinkToken{}, identity.NotFoundError{Op: "magiclink.ConsumeMagicLink", Resource: "magic_link_token"}
}
