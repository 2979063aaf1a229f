package challenge

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MaxTTL caps challenge lifetime; challenges live minutes, not hours.
const MaxTTL = 30 * time.Minute

// Config controls challenge issuance.
type Config struct {
	// TTL is how long an issued challenge stays signable.
	TTL time.Duration `env:"USERBASE_CHALLENGE_TTL, default=10m"`

	// NonceBytes is the random entropy per challenge (hex encoded in the message).
	NonceBytes int `env:"USERBASE_CHALLENGE_NONCE_BYTES, default=16"`

	// AppName opens the rendered message ("<AppName> wants you to ...").
	AppName string `env:"USERBASE_APP_NAME, default=Userbase"`
}

// DefaultConfig returns the defaults used when no environment is present.
func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute, NonceBytes: 16, AppName: "Userbase"}
}

// LoadConfigFromEnv loads Config from USERBASE_CHALLENGE_* variables.
func LoadConfigFromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.normalized()
}

func (c Config) normalized() (Config, error) {
	if c.TTL <= 0 || c.TTL > MaxTTL {
		return Config{}, ErrConfig
	}
	if c.NonceBytes < 16 || c.NonceBytes > 64 {
		return Config{}, ErrConfig
	}
	if c.AppName == "" {
		c.AppName = "Userbase"
	}
	return c, nil
}
