package identity

import (
	"net"
	"time"
)

// User is userbase's application account.
type User struct {
	ID          string
	Handle      *string
	DisplayName *string
	AvatarURL   *string

	Status         UserStatus
	OnboardingStep int

	// MergedIntoUserID is set once the user was merged away (Status == StatusMerged).
	MergedIntoUserID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is a verified binding between a user and one external identity.
// (Type, Identifier) is globally unique.
type Identity struct {
	ID     string
	UserID string

	Type IdentityType
	// Identifier is the normalized form: hive handle, lowercase 0x address, or decimal fid.
	Identifier string

	// IsPrimary is true for at most one identity per (UserID, Type).
	IsPrimary  bool
	VerifiedAt time.Time
	Metadata   map[string]any

	CreatedAt time.Time
}

// AuthMethod binds a normalized email address to a user for magic-link login.
type AuthMethod struct {
	ID         string
	UserID     string
	Type       AuthMethodType
	Identifier string
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Session is a refresh-token backed login.
// IMPORTANT: RefreshTokenHash is stored server-side; the plain refresh token is never stored.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time

	RevocationReason *string

	UserAgent *string
	DeviceID  *string
	IP        *net.IP
}

// ChallengeScope is the key a challenge is issued for and looked up by.
// UserID is nil for anonymous login challenges.
type ChallengeScope struct {
	Purpose    ChallengePurpose
	UserID     *string
	Type       IdentityType
	Identifier string
}

// Challenge is a nonce-bearing message awaiting a signature.
type Challenge struct {
	ID string
	ChallengeScope

	Nonce   string
	Message string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// MagicLinkToken is a single-use, hashed, time-boxed email login token.
type MagicLinkToken struct {
	ID          string
	Email       string
	TokenHash   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	RequestedIP *net.IP
}

// MergeCounts are the dependent rows a merge carries from source to target.
type MergeCounts struct {
	Identities  int `json:"identities"`
	AuthMethods int `json:"auth_methods"`
	Sessions    int `json:"sessions"`
	Posts       int `json:"posts"`
	Votes       int `json:"votes"`
}

// MergeInput describes one atomic reassignment.
type MergeInput struct {
	SourceUserID string
	TargetUserID string
	// ChallengeID is consumed inside the same transaction as the reassignment.
	ChallengeID string
	Now         time.Time
}
