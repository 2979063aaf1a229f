package authapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.False(t, cfg.Production())
}

func TestLoadConfigFromEnv_SameSiteNoneNeedsSecure(t *testing.T) {
	t.Setenv("USERBASE_COOKIE_SAMESITE", "none")
	t.Setenv("USERBASE_COOKIE_INSECURE", "true")

	_, err := LoadConfigFromEnv(context.Background())
	require.True(t, errors.Is(err, ErrConfig), "got %v", err)
}

func TestLoadConfigFromEnv_UnknownSameSite(t *testing.T) {
	t.Setenv("USERBASE_COOKIE_SAMESITE", "sometimes")

	_, err := LoadConfigFromEnv(context.Background())
	require.True(t, errors.Is(err, ErrConfig), "got %v", err)
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
		ok   bool
	}{
		{in: "strict", want: http.SameSiteStrictMode, ok: true},
		{in: "Lax", want: http.SameSiteLaxMode, ok: true},
		{in: "none", want: http.SameSiteNoneMode, ok: true},
		{in: "", want: http.SameSiteLaxMode, ok: true},
		{in: "unknown", want: http.SameSiteLaxMode, ok: false},
	}
	for _, tc := range tests {
		got, ok := parseSameSite(tc.in)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestProduction(t *testing.T) {
	require.True(t, Config{Env: "Production"}.Production())
	require.False(t, Config{Env: "staging"}.Production())
}
