package identity

import (
	"context"
	"time"
)

// NewIdentity is the chain identity half of a CreateAccount request.
type NewIdentity struct {
	Type       IdentityType
	Identifier string
	Metadata   map[string]any
}

// NewAuthMethod is the email half of a CreateAccount request.
type NewAuthMethod struct {
	Type       AuthMethodType
	Identifier string
	Verified   bool
}

// CreateAccountInput creates a user together with exactly one credential.
// Handle must already be a valid, slugified candidate.
type CreateAccountInput struct {
	Handle      string
	DisplayName *string
	AvatarURL   *string

	Identity   *NewIdentity
	AuthMethod *NewAuthMethod

	Now time.Time
}

// CreateAccountResult returns what was written. Exactly one of Identity or
// AuthMethod is non-nil, matching the input.
type CreateAccountResult struct {
	User       User
	Identity   *Identity
	AuthMethod *AuthMethod
}

// UpsertIdentityInput binds an identity to an existing user.
type UpsertIdentityInput struct {
	UserID     string
	Type       IdentityType
	Identifier string
	Metadata   map[string]any
	Now        time.Time
}

// UpsertIdentityResult reports the bound identity and whether it was newly inserted.
type UpsertIdentityResult struct {
	Identity Identity
	Created  bool
}

// ProfilePatch carries fill-in-blank profile values. Nil fields are ignored;
// non-nil fields only apply where the stored value is NULL.
type ProfilePatch struct {
	Handle      *string
	DisplayName *string
	AvatarURL   *string
}

// Store is the identity persistence boundary.
//
// Contract:
//   - (Type, Identifier) uniqueness and one-primary-per-(user, type) are enforced
//     by the store itself, not only by callers, since requests race.
//   - CreateAccount is atomic: either the user and its credential both exist, or neither.
//   - Lookups of missing rows return an error matching ErrNotFound.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (User, error)
	HandleTaken(ctx context.Context, handle string) (bool, error)
	CreateAccount(ctx context.Context, in CreateAccountInput) (CreateAccountResult, error)
	BackfillProfile(ctx context.Context, userID string, p ProfilePatch, now time.Time) (User, error)

	FindIdentity(ctx context.Context, t IdentityType, identifier string) (Identity, error)
	ListIdentities(ctx context.Context, userID string) ([]Identity, error)

	// UpsertIdentity returns ConflictError{Field: "identity", OwnerUserID: other}
	// when the identity is bound to a different user, and the existing row
	// (Created=false) when it is already bound to UserID.
	UpsertIdentity(ctx context.Context, in UpsertIdentityInput) (UpsertIdentityResult, error)

	FindAuthMethod(ctx context.Context, t AuthMethodType, identifier string) (AuthMethod, error)
}
