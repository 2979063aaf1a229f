package magiclink

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config controls magic-link issuance.
type Config struct {
	TTL        time.Duration `env:"USERBASE_MAGIC_LINK_TTL, default=15m"`
	TokenBytes int           `env:"USERBASE_MAGIC_LINK_TOKEN_BYTES, default=32"`
	// BaseURL is the page that receives ?token=... and posts it to /auth/magic-link/verify.
	BaseURL string `env:"USERBASE_MAGIC_LINK_BASE_URL, default=http://localhost:8080/auth/magic-link"`
	Subject string `env:"USERBASE_MAGIC_LINK_SUBJECT, default=Your sign-in link"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		TTL:        15 * time.Minute,
		TokenBytes: 32,
		BaseURL:    "http://localhost:8080/auth/magic-link",
		Subject:    "Your sign-in link",
	}
}

// LoadConfigFromEnv reads USERBASE_MAGIC_LINK_* variables.
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

// Validate checks ranges and that BaseURL is absolute.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.TTL > 24*time.Hour {
		return fmt.Errorf("%w: ttl out of range", ErrConfig)
	}
	if c.TokenBytes < 16 || c.TokenBytes > 64 {
		return fmt.Errorf("%w: token bytes must be 16-64", ErrConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base url must be absolute", ErrConfig)
	}
	return nil
}
