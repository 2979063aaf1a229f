package provision

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Config controls account provisioning.
type Config struct {
	// HandleMaxAttempts bounds handle allocation before ErrHandleExhausted.
	HandleMaxAttempts int `env:"USERBASE_HANDLE_MAX_ATTEMPTS, default=8"`
}

func DefaultConfig() Config { return Config{HandleMaxAttempts: 8} }

// LoadConfigFromEnv reads USERBASE_HANDLE_* variables.
func LoadConfigFromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("provision: %w", err)
	}
	if cfg.HandleMaxAttempts < 1 || cfg.HandleMaxAttempts > 64 {
		return Config{}, fmt.Errorf("provision: USERBASE_HANDLE_MAX_ATTEMPTS must be 1-64")
	}
	return cfg, nil
}
