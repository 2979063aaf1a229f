package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string `env:"USERBASE_AUTH_ISSUER, default=userbase"`

	// Audience is the "aud" claim; verifiers reject tokens minted for another audience.
	Audience string `env:"USERBASE_AUTH_AUDIENCE, default=userbase-api"`

	// AccessTokenTTL defines the lifetime of PASETO access tokens.
	AccessTokenTTL time.Duration `env:"USERBASE_AUTH_ACCESS_TTL, default=15m"`

	// SessionTTL is the fixed lifetime of a refresh-token session.
	SessionTTL time.Duration `env:"USERBASE_SESSION_TTL, default=720h"`

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration `env:"USERBASE_AUTH_CLOCK_SKEW, default=30s"`

	// RefreshTokenBytes defines the number of random bytes in a refresh token.
	RefreshTokenBytes int `env:"USERBASE_AUTH_REFRESH_TOKEN_BYTES, default=32"`

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public access tokens.
	PasetoV4SecretKeyHex string `env:"USERBASE_PASETO_V4_SECRET_KEY_HEX"`
}

// DefaultConfig returns the defaults without a signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:            "userbase",
		Audience:          "userbase-api",
		AccessTokenTTL:    15 * time.Minute,
		SessionTTL:        30 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads session configuration from USERBASE_* variables.
//
// Required:
//   - USERBASE_PASETO_V4_SECRET_KEY_HEX
//
// Returns an error matching ErrConfig if configuration is invalid.
func LoadConfigFromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and the presence of the signing key.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: empty issuer", ErrConfig)
	case c.Audience == "":
		return fmt.Errorf("%w: empty audience", ErrConfig)
	case c.AccessTokenTTL <= 0 || c.AccessTokenTTL > 24*time.Hour:
		return fmt.Errorf("%w: access ttl out of range", ErrConfig)
	case c.SessionTTL <= 0:
		return fmt.Errorf("%w: session ttl must be positive", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: negative clock skew", ErrConfig)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return fmt.Errorf("%w: refresh token bytes must be 32-64", ErrConfig)
	case c.PasetoV4SecretKeyHex == "":
		return fmt.Errorf("%w: missing paseto secret key", ErrConfig)
	}
	return nil
}
