package verify

import (
	"fmt"

	"userbase/cmd/identity"
)

// Stable verification failures. Each unwraps to an identity kind.
var (
	ErrUnsupportedType    = identity.NewCoded(identity.ErrInvalidInput, "unsupported_identity_type")
	ErrMalformedIdent     = identity.NewCoded(identity.ErrInvalidInput, "malformed_identifier")
	ErrMalformedSignature = identity.NewCoded(identity.ErrInvalidInput, "malformed_signature")
	ErrMalformedPublicKey = identity.NewCoded(identity.ErrInvalidInput, "malformed_public_key")
	ErrSignatureMismatch  = identity.NewCoded(identity.ErrForbidden, "signature_mismatch")
	ErrKeyNotAuthorized   = identity.NewCoded(identity.ErrForbidden, "key_not_authorized")
	ErrAccountNotFound    = identity.NewCoded(identity.ErrForbidden, "account_not_found")
	ErrChainUnavailable   = identity.NewCoded(identity.ErrDependency, "chain_unavailable")
)

// VerificationError records which verifier rejected a proof and why.
type VerificationError struct {
	Type identity.IdentityType
	Err  error
	// Detail is diagnostic text; it never contains the signature.
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("verify %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("verify %s: %v: %s", e.Type, e.Err, e.Detail)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func reject(t identity.IdentityType, err error, detail error) error {
	ve := &VerificationError{Type: t, Err: err}
	if detail != nil {
		ve.Detail = detail.Error()
	}
	return ve
}
