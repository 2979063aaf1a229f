package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"userbase/cmd/internal/health"
	"userbase/cmd/internal/mail"
	"userbase/cmd/internal/notify"
	"userbase/cmd/security/token"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// ConfigError names the offending variable.
type ConfigError struct {
	Key    string
	Reason string
}

func (e ConfigError) Error() string { return fmt.Sprintf("config: %s: %s", e.Key, e.Reason) }

// Config contains the runtime configuration loaded from USERBASE_* variables.
// Per-package settings (sessions, challenges, API) load in New.
type Config struct {
	Env       string `env:"USERBASE_ENV, default=development"`
	HTTPAddr  string `env:"USERBASE_HTTP_ADDR, default=0.0.0.0:8080"`
	LogLevel  string `env:"USERBASE_LOG_LEVEL, default=info"`
	LogFormat string `env:"USERBASE_LOG_FORMAT, default=json"`

	ReadHeaderTimeout time.Duration `env:"USERBASE_HTTP_READ_HEADER_TIMEOUT, default=5s"`
	ReadTimeout       time.Duration `env:"USERBASE_HTTP_READ_TIMEOUT, default=15s"`
	WriteTimeout      time.Duration `env:"USERBASE_HTTP_WRITE_TIMEOUT, default=15s"`
	IdleTimeout       time.Duration `env:"USERBASE_HTTP_IDLE_TIMEOUT, default=60s"`
	MaxHeaderBytes    int           `env:"USERBASE_HTTP_MAX_HEADER_BYTES, default=1048576"`

	Store       string `env:"USERBASE_STORE, default=postgres"`
	DatabaseURL string `env:"USERBASE_DATABASE_URL"`
	DBSchema    string `env:"USERBASE_DB_SCHEMA, default=userbase"`
	DBMaxConns  int32  `env:"USERBASE_DB_MAX_CONNS, default=10"`
	DBMinConns  int32  `env:"USERBASE_DB_MIN_CONNS, default=0"`
	AutoMigrate bool   `env:"USERBASE_AUTO_MIGRATE, default=false"`

	// TokenHMACKey switches bearer-secret hashing to HMAC-SHA256 (>= 32 bytes).
	// If RequireTokenHMAC is true it must be set.
	TokenHMACKey     string `env:"USERBASE_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `env:"USERBASE_REQUIRE_TOKEN_HMAC, default=false"`

	MagicLinks bool `env:"USERBASE_MAGIC_LINKS_ENABLED, default=false"`

	HiveNodes   []string      `env:"USERBASE_HIVE_NODES"`
	HiveTimeout time.Duration `env:"USERBASE_HIVE_TIMEOUT, default=5s"`

	SMTP   mail.Config
	Alert  notify.Config
	Health health.Config
}

// Production reports whether Env is "production".
func (c Config) Production() bool { return strings.EqualFold(c.Env, "production") }

// LoadConfig reads and validates Config.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, ConfigError{Key: "USERBASE_*", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces cross-field rules once at startup.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
		if c.Production() {
			return ConfigError{Key: "USERBASE_STORE", Reason: "memory store is not allowed in production"}
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return ConfigError{Key: "USERBASE_DATABASE_URL", Reason: "required when USERBASE_STORE=postgres"}
		}
	default:
		return ConfigError{Key: "USERBASE_STORE", Reason: fmt.Sprintf("unknown store %q (want memory or postgres)", c.Store)}
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return ConfigError{Key: "USERBASE_LOG_FORMAT", Reason: "want json or text"}
	}

	if c.MagicLinks && c.Production() && !c.SMTP.Configured() {
		return ConfigError{Key: "USERBASE_SMTP_HOST", Reason: "SMTP host and from address are required when magic links are enabled"}
	}
	if c.HiveTimeout <= 0 {
		return ConfigError{Key: "USERBASE_HIVE_TIMEOUT", Reason: "must be positive"}
	}
	return c.validateSecurity()
}

// validateSecurity enforces the refresh-token hashing policy.
func (c Config) validateSecurity() error {
	if _, err := token.NewHasher(c.TokenHMACKey, token.MinHMACKeyBytes); err != nil {
		return ConfigError{Key: token.HMACEnvKey, Reason: fmt.Sprintf("too short (min %d bytes)", token.MinHMACKeyBytes)}
	}
	if c.RequireTokenHMAC && strings.TrimSpace(c.TokenHMACKey) == "" {
		return ConfigError{Key: token.HMACEnvKey, Reason: "required when USERBASE_REQUIRE_TOKEN_HMAC=true"}
	}
	return nil
}

// TokenHasher returns the hasher for bearer secrets. Call after Validate.
func (c Config) TokenHasher() token.Hasher {
	h, _ := token.NewHasher(c.TokenHMACKey, token.MinHMACKeyBytes)
	return h
}
