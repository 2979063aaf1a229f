package identity

import "strings"

// IdentityType is the kind of external identity bound to a user.
type IdentityType string

const (
	TypeHive      IdentityType = "hive"
	TypeEVM       IdentityType = "evm"
	TypeFarcaster IdentityType = "farcaster"
)

// ParseIdentityType parses a wire value (case-insensitive).
func ParseIdentityType(s string) (IdentityType, error) {
	t := IdentityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", OpError{Op: "identity.ParseIdentityType", Kind: ErrInvalidInput, Msg: "unsupported identity type"}
	}
	return t, nil
}

// Valid reports whether t is a known identity type.
func (t IdentityType) Valid() bool {
	switch t {
	case TypeHive, TypeEVM, TypeFarcaster:
		return true
	default:
		return false
	}
}

// AuthMethodType is the kind of non-chain login credential.
type AuthMethodType string

const AuthMethodEmail AuthMethodType = "email"

// UserStatus is the lifecycle state of a user row.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
	// StatusMerged marks a source account whose records were reassigned by a merge.
	StatusMerged UserStatus = "merged"
)

// ChallengePurpose scopes a challenge to the flow that issued it.
type ChallengePurpose string

const (
	PurposeLogin ChallengePurpose = "login"
	PurposeLink  ChallengePurpose = "link"
	PurposeMerge ChallengePurpose = "merge"
)

// Valid reports whether p is a known purpose.
func (p ChallengePurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeLink, PurposeMerge:
		return true
	default:
		return false
	}
}
