package provision

import (
	"context"

	"userbase/cmd/identity"
	"userbase/cmd/security/token"
)

func randomSuffix() (string, error) { return token.NewNonceHex(2) }

// candidate returns the attempt-th handle for slug: the bare slug first,
// then slug-xxxx with a random suffix.
func (s *Service) candidate(slug string, attempt int) (string, error) {
	if attempt == 0 {
		return slug, nil
	}
	sfx, err := s.suffix()
	if err != nil {
		return "", err
	}
	return slug + "-" + sfx, nil
}

// createAccount allocates a handle and creates the account. A handle lost to a
// concurrent insert counts as one attempt; anything else is returned as is.
func (s *Service) createAccount(ctx context.Context, base string, in identity.CreateAccountInput) (identity.CreateAccountResult, error) {
	slug := identity.SlugifyHandle(base)

	for attempt := 0; attempt < s.cfg.HandleMaxAttempts; attempt++ {
		h, err := s.candidate(slug, attempt)
		if err != nil {
			return identity.CreateAccountResult{}, err
		}
		taken, err := s.users.HandleTaken(ctx, h)
		if err != nil {
			return identity.CreateAccountResult{}, err
		}
		if taken {
			continue
		}

		in.Handle = h
		res, err := s.users.CreateAccount(ctx, in)
		if err == nil {
			return res, nil
		}
		if ce, ok := identity.AsConflict(err); ok && ce.Field == "handle" {
			continue
		}
		return identity.CreateAccountResult{}, err
	}
	return identity.CreateAccountResult{}, ErrHandleExhausted
}

// allocateHandle finds a free handle for backfilling an existing user.
func (s *Service) allocateHandle(ctx context.Context, base string) (string, error) {
	slug := identity.SlugifyHandle(base)
	for attempt := 0; attempt < s.cfg.HandleMaxAttempts; attempt++ {
		h, err := s.candidate(slug, attempt)
		if err != nil {
			return "", err
		}
		taken, err := s.users.HandleTaken(ctx, h)
		if err != nil {
			return "", err
		}
		if !taken {
			return h, nil
		}
	}
	return "", ErrHandleExhausted
}
