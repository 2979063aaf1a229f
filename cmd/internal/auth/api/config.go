package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrConfig indicates invalid API configuration.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls auth API behavior and security defaults.
type Config struct {
	// Env is the deployment environment. Error details are only returned
	// outside "production".
	Env string `env:"USERBASE_ENV, default=development"`

	TrustProxy   bool  `env:"USERBASE_TRUST_PROXY, default=false"`
	MaxBodyBytes int64 `env:"USERBASE_MAX_BODY_BYTES, default=65536"`

	CookieName     string `env:"USERBASE_COOKIE_NAME, default=userbase_refresh"`
	CookieDomain   string `env:"USERBASE_COOKIE_DOMAIN"`
	CookiePath     string `env:"USERBASE_COOKIE_PATH, default=/"`
	CookieInsecure bool   `env:"USERBASE_COOKIE_INSECURE, default=false"`
	CookieSameSite string `env:"USERBASE_COOKIE_SAMESITE, default=lax"`

	// Failed bootstraps per IP inside the window before 429.
	BootstrapIPMax    int           `env:"USERBASE_BOOTSTRAP_IP_MAX, default=20"`
	BootstrapIPWindow time.Duration `env:"USERBASE_BOOTSTRAP_IP_WINDOW, default=5m"`

	// Magic-link requests per IP inside the window before 429.
	MagicLinkIPMax    int           `env:"USERBASE_MAGIC_LINK_IP_MAX, default=5"`
	MagicLinkIPWindow time.Duration `env:"USERBASE_MAGIC_LINK_IP_WINDOW, default=15m"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		Env:               "development",
		MaxBodyBytes:      64 << 10,
		CookieName:        "userbase_refresh",
		CookiePath:        "/",
		CookieSameSite:    "lax",
		BootstrapIPMax:    20,
		BootstrapIPWindow: 5 * time.Minute,
		MagicLinkIPMax:    5,
		MagicLinkIPWindow: 15 * time.Minute,
	}
}

// LoadConfigFromEnv loads the API config from USERBASE_* variables.
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

// Validate checks ranges and cookie guardrails.
func (c Config) Validate() error {
	switch {
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max body bytes must be positive", ErrConfig)
	case strings.TrimSpace(c.CookieName) == "":
		return fmt.Errorf("%w: empty cookie name", ErrConfig)
	case c.BootstrapIPMax < 0 || c.MagicLinkIPMax < 0:
		return fmt.Errorf("%w: negative rate limit", ErrConfig)
	case c.BootstrapIPWindow <= 0 || c.MagicLinkIPWindow <= 0:
		return fmt.Errorf("%w: rate limit window must be positive", ErrConfig)
	}
	if _, ok := parseSameSite(c.CookieSameSite); !ok {
		return fmt.Errorf("%w: unknown SameSite mode %q", ErrConfig, c.CookieSameSite)
	}
	if c.sameSite() == http.SameSiteNoneMode && c.CookieInsecure {
		return fmt.Errorf("%w: SameSite=None requires a secure cookie", ErrConfig)
	}
	return nil
}

// Production reports whether error details must be withheld.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

func (c Config) sameSite() http.SameSite {
	s, _ := parseSameSite(c.CookieSameSite)
	return s
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteLaxMode, false
	}
}
