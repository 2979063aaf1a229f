package provision

import "userbase/cmd/identity"

var (
	// ErrCredentialRequired is returned when there is neither a valid session nor a credential.
	ErrCredentialRequired = identity.NewCoded(identity.ErrUnauthenticated, "credential_required")

	// ErrAccountSuspended is returned when the credential's owner is suspended.
	ErrAccountSuspended = identity.NewCoded(identity.ErrForbidden, "account_suspended")

	// ErrHandleExhausted is returned when no free handle was found within the attempt budget.
	ErrHandleExhausted = identity.NewCoded(identity.ErrCapacity, "handle_exhausted")

	// ErrChallengeNotRequired is returned when a challenge is requested for a self-reported type.
	ErrChallengeNotRequired = identity.NewCoded(identity.ErrInvalidInput, "challenge_not_required")
)
