package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	errNoChallenge := NewCoded(ErrUnauthenticated, "no_active_challenge")

	wrapped := fmt.Errorf("verify: %w", errNoChallenge)
	require.Equal(t, "no_active_challenge", Code(wrapped))
	require.True(t, errors.Is(wrapped, ErrUnauthenticated))
	require.True(t, errors.Is(wrapped, errNoChallenge))

	require.Equal(t, "conflict", Code(ConflictError{Op: "x", Field: "handle"}))
	require.Equal(t, "not_found", Code(NotFoundError{Op: "x"}))
	require.Equal(t, "invalid_input", Code(OpError{Op: "x", Kind: ErrInvalidInput}))
	require.Equal(t, "internal_error", Code(errors.New("boom")))
}

func TestAsConflict(t *testing.T) {
	err := fmt.Errorf("link: %w", ConflictError{Op: "identity.UpsertIdentity", Field: "identity", OwnerUserID: "u2"})
	ce, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, "u2", ce.OwnerUserID)
	require.True(t, IsConflict(err))
	require.True(t, errors.Is(err, ErrConflict))
}
