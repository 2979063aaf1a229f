package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"userbase/cmd/internal/dbschema"
)

// Serve loads config, builds the App and serves until SIGINT or SIGTERM.
func Serve(ctx context.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("server.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}

// Migrate applies the schema to USERBASE_DATABASE_URL and exits.
func Migrate(ctx context.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Store != StorePostgres {
		return ConfigError{Key: "USERBASE_STORE", Reason: "migrate requires postgres"}
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := dbschema.Apply(ctx, pool, cfg.DBSchema); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	log.Info("db.migrate.ok", "schema", cfg.DBSchema)
	return nil
}
