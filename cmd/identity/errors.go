package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind MUST be one of the sentinel kinds. Msg must not include secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict for a specific logical field.
// Field is a stable name: "handle", "identity", "auth_method", "refresh_token", ...
// OwnerUserID is set when the conflicting row belongs to a known user, so the
// client can offer a merge.
type ConflictError struct {
	Op          string
	Field       string
	OwnerUserID string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing referenced resource (e.g., FK violation) or missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// CodedError is a package-level sentinel that carries a stable wire code
// (the JSON "error" string) and unwraps to its taxonomy kind.
type CodedError struct {
	Code string
	Kind error
}

// NewCoded returns a sentinel for use with errors.Is.
func NewCoded(kind error, code string) *CodedError {
	return &CodedError{Code: code, Kind: kind}
}

func (e *CodedError) Error() string { return e.Code }

func (e *CodedError) Unwrap() error { return e.Kind }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// AsConflict returns the ConflictError in err's chain, if any.
func AsConflict(err error) (ConflictError, bool) {
	var ce ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotActive reports whether err represents ErrNotActive.
func IsNotActive(err error) bool { return errors.Is(err, ErrNotActive) }

// Code returns the stable wire code for err.
// Coded sentinels win; otherwise the first matching taxonomy kind is used.
func Code(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	for _, k := range []error{
		ErrInvalidInput, ErrUnauthenticated, ErrForbidden, ErrNotFound,
		ErrConflict, ErrNotActive, ErrCapacity, ErrDependency,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal_error"
}

// ErrNoActiveChallenge is shared by the challenge service and the stores that
// consume challenges inside larger transactions (merge).
var ErrNoActiveChallenge = NewCoded(ErrUnauthenticated, "no_active_challenge")
