package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"userbase/cmd/identity"
)

var _ identity.Store = (*Store)(nil)

func (s *Store) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return cloneUser(u), nil
}

func (s *Store) HandleTaken(ctx context.Context, handle string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handleTakenLocked(handle), nil
}

func (s *Store) handleTakenLocked(handle string) bool {
	for _, u := range s.users {
		if u.Handle != nil && *u.Handle == handle {
			return true
		}
	}
	return false
}

func (s *Store) CreateAccount(ctx context.Context, in identity.CreateAccountInput) (identity.CreateAccountResult, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return identity.CreateAccountResult{}, err
	}
	if !identity.ValidHandle(in.Handle) {
		return identity.CreateAccountResult{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "invalid handle"}
	}
	if (in.Identity == nil) == (in.AuthMethod == nil) {
		return identity.CreateAccountResult{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "exactly one of identity or auth method is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handleTakenLocked(in.Handle) {
		return identity.CreateAccountResult{}, identity.ConflictError{Op: op, Field: "handle"}
	}
	if in.Identity != nil {
		if owner, ok := s.findIdentityLocked(in.Identity.Type, in.Identity.Identifier); ok {
			return identity.CreateAccountResult{}, identity.ConflictError{Op: op, Field: "identity", OwnerUserID: owner.UserID}
		}
	}
	if in.AuthMethod != nil {
		if owner, ok := s.findAuthMethodLocked(in.AuthMethod.Type, in.AuthMethod.Identifier); ok {
			return identity.CreateAccountResult{}, identity.ConflictError{Op: op, Field: "auth_method", OwnerUserID: owner.UserID}
		}
	}

	handle := in.Handle
	u := identity.User{
		ID:          mustULID(),
		Handle:      &handle,
		DisplayName: trimPtr(in.DisplayName),
		AvatarURL:   trimPtr(in.AvatarURL),
		Status:      identity.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	out := identity.CreateAccountResult{User: cloneUser(u)}

	if in.Identity != nil {
		ident := identity.Identity{
			ID:         mustULID(),
			UserID:     u.ID,
			Type:       in.Identity.Type,
			Identifier: in.Identity.Identifier,
			IsPrimary:  true,
			VerifiedAt: now,
			Metadata:   in.Identity.Metadata,
			CreatedAt:  now,
		}
		ident = cloneIdentity(ident)
		s.identities[ident.ID] = ident
		c := cloneIdentity(ident)
		out.Identity = &c
	}
	if in.AuthMethod != nil {
		am := identity.AuthMethod{
			ID:         mustULID(),
			UserID:     u.ID,
			Type:       in.AuthMethod.Type,
			Identifier: in.AuthMethod.Identifier,
			CreatedAt:  now,
		}
		if in.AuthMethod.Verified {
			t := now
			am.VerifiedAt = &t
		}
		s.authMethods[am.ID] = am
		c := am
		out.AuthMethod = &c
	}
	s.users[u.ID] = u
	return out, nil
}

func (s *Store) BackfillProfile(ctx context.Context, userID string, p identity.ProfilePatch, now time.Time) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "identity.BackfillProfile", Resource: "user"}
	}

	changed := false
	if v := trimPtr(p.DisplayName); v != nil && u.DisplayName == nil {
		u.DisplayName, changed = v, true
	}
	if v := trimPtr(p.AvatarURL); v != nil && u.AvatarURL == nil {
		u.AvatarURL, changed = v, true
	}
	if v := trimPtr(p.Handle); v != nil && u.Handle == nil && identity.ValidHandle(*v) && !s.handleTakenLocked(*v) {
		u.Handle, changed = v, true
	}
	if changed {
		u.UpdatedAt = now
		s.users[userID] = u
	}
	return cloneUser(u), nil
}

func (s *Store) FindIdentity(ctx context.Context, t identity.IdentityType, identifier string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.findIdentityLocked(t, identifier)
	if !ok {
		return identity.Identity{}, identity.NotFoundError{Op: "identity.FindIdentity", Resource: "identity"}
	}
	return cloneIdentity(ident), nil
}

func (s *Store) findIdentityLocked(t identity.IdentityType, identifier string) (identity.Identity, bool) {
	for _, ident := range s.identities {
		if ident.Type == t && ident.Identifier == identifier {
			return ident, true
		}
	}
	return identity.Identity{}, false
}

func (s *Store) ListIdentities(ctx context.Context, userID string) ([]identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]identity.Identity, 0, 4)
	for _, ident := range s.identities {
		if ident.UserID == userID {
			out = append(out, cloneIdentity(ident))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpsertIdentity(ctx context.Context, in identity.UpsertIdentityInput) (identity.UpsertIdentityResult, error) {
	const op = "identity.UpsertIdentity"

	if err := ctx.Err(); err != nil {
		return identity.UpsertIdentityResult{}, err
	}
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Identifier) == "" || !in.Type.Valid() {
		return identity.UpsertIdentityResult{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "missing user, type or identifier"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return identity.UpsertIdentityResult{}, identity.NotFoundError{Op: op, Resource: "user"}
	}
	if existing, ok := s.findIdentityLocked(in.Type, in.Identifier); ok {
		if existing.UserID != in.UserID {
			return identity.UpsertIdentityResult{}, identity.ConflictError{Op: op, Field: "identity", OwnerUserID: existing.UserID}
		}
		return identity.UpsertIdentityResult{Identity: cloneIdentity(existing)}, nil
	}

	primary := true
	for _, ident := range s.identities {
		if ident.UserID == in.UserID && ident.Type == in.Type {
			primary = false
			break
		}
	}

	ident := cloneIdentity(identity.Identity{
		ID:         mustULID(),
		UserID:     in.UserID,
		Type:       in.Type,
		Identifier: in.Identifier,
		IsPrimary:  primary,
		VerifiedAt: now,
		Metadata:   in.Metadata,
		CreatedAt:  now,
	})
	s.identities[ident.ID] = ident
	return identity.UpsertIdentityResult{Identity: cloneIdentity(ident), Created: true}, nil
}

func (s *Store) FindAuthMethod(ctx context.Context, t identity.AuthMethodType, identifier string) (identity.AuthMethod, error) {
	if err := ctx.Err(); err != nil {
		return identity.AuthMethod{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	am, ok := s.findAuthMethodLocked(t, identifier)
	if !ok {
		return identity.AuthMethod{}, identity.NotFoundError{Op: "identity.FindAuthMethod", Resource: "auth_method"}
	}
	return am, nil
}

func (s *Store) findAuthMethodLocked(t identity.AuthMethodType, identifier string) (identity.AuthMethod, bool) {
	for _, am := range s.authMethods {
		if am.Type == t && am.Identifier == identifier {
			return am, true
		}
	}
	return identity.AuthMethod{}, false
}

// SetUserStatus changes a user's status (suspension tooling and tests).
func (s *Store) SetUserStatus(userID string, status identity.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Status = status
		s.users[userID] = u
	}
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
