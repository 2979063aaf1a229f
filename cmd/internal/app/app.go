// Package app wires the userbase server runtime: config, logging, storage,
// auth services and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
	authapi "userbase/cmd/internal/auth/api"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/link"
	"userbase/cmd/internal/auth/magiclink"
	"userbase/cmd/internal/auth/merge"
	"userbase/cmd/internal/auth/provision"
	"userbase/cmd/internal/auth/session"
	"userbase/cmd/internal/auth/verify"
	"userbase/cmd/internal/dbschema"
	"userbase/cmd/internal/health"
	"userbase/cmd/internal/hive"
	"userbase/cmd/internal/mail"
	"userbase/cmd/internal/memstore"
	"userbase/cmd/internal/metrics"
	"userbase/cmd/internal/notify"
)

// Alerter receives operational failures worth paging on.
type Alerter interface {
	Alert(ctx context.Context, event string, fields map[string]any)
}

// backend is the set of stores behind the services. The app owns the pool.
type backend struct {
	users      identity.Store
	sessions   session.Store
	challenges challenge.Store
	merges     merge.Store
	magic      magiclink.Store
	audit      audit.Log

	pool *pgxpool.Pool
}

func (b backend) close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// App is the userbase server runtime.
type App struct {
	cfg Config
	log *slog.Logger

	backend backend
	health  *health.Checker
	metrics *metrics.Metrics
	auth    *authapi.Handler
}

// New constructs a fully wired App. Package-level settings (sessions,
// challenges, provisioning, API, magic links) are read from the environment.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	be, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, log, be)
	if err != nil {
		be.close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg Config, log *slog.Logger, be backend) (*App, error) {
	alerter := newAlerter(cfg, log)

	sessCfg, err := session.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		return nil, err
	}
	hasher := cfg.TokenHasher()
	sessions := session.NewService(sessCfg, be.sessions, tokens, hasher)

	chCfg, err := challenge.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	challenges, err := challenge.NewService(chCfg, be.challenges)
	if err != nil {
		return nil, err
	}

	hiveOpts := []hive.ClientOption{hive.WithTimeout(cfg.HiveTimeout), hive.WithLogger(log)}
	if len(cfg.HiveNodes) > 0 {
		hiveOpts = append(hiveOpts, hive.WithNodes(cfg.HiveNodes...))
	}
	hiveClient := hive.NewClient(hiveOpts...)
	verifiers := verify.NewRegistry(verify.NewHive(hiveClient), verify.NewEVM(), verify.NewFarcaster())

	provCfg, err := provision.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	prov, err := provision.NewService(provCfg, be.users, sessions, challenges, verifiers,
		provision.WithLogger(log), provision.WithAlerter(alerter))
	if err != nil {
		return nil, err
	}

	links, err := link.NewService(be.users, challenges, verifiers, log)
	if err != nil {
		return nil, err
	}

	merges, err := merge.NewEngine(be.merges, be.users, challenges, verifiers,
		merge.WithLogger(log), merge.WithAlerter(alerter))
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	apiCfg, err := authapi.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	opts := []authapi.HandlerOption{
		authapi.WithLogger(log),
		authapi.WithAudit(be.audit),
		authapi.WithMetrics(m),
	}
	if cfg.MagicLinks {
		magic, err := newMagicLinks(ctx, cfg, log, be.magic)
		if err != nil {
			return nil, err
		}
		opts = append(opts, authapi.WithMagicLinks(magic))
	}

	auth, err := authapi.NewHandler(apiCfg, authapi.Deps{
		Users:     be.users,
		Sessions:  sessions,
		Provision: prov,
		Links:     links,
		Merges:    merges,
	}, opts...)
	if err != nil {
		return nil, err
	}

	checks := []health.Check{{Name: "hive", Fn: hiveClient.Ping, AlertOnFailure: true}}
	if be.pool != nil {
		pool := be.pool
		checks = append(checks, health.Check{
			Name:           "postgres",
			Fn:             func(ctx context.Context) error { return pool.Ping(ctx) },
			AlertOnFailure: true,
		})
	}
	checker, err := health.NewChecker(cfg.Health, checks, alerter, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		backend: be,
		health:  checker,
		metrics: m,
		auth:    auth,
	}, nil
}

// newBackend picks the memory or Postgres stores.
func newBackend(ctx context.Context, cfg Config, log *slog.Logger) (backend, error) {
	if cfg.Store == StoreMemory {
		log.Warn("store.memory", "msg", "state is lost on restart")
		st := memstore.New()
		return backend{users: st, sessions: st, challenges: st, merges: st, magic: st, audit: st}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return backend{}, err
	}
	be, err := postgresBackend(ctx, cfg, pool)
	if err != nil {
		pool.Close()
		return backend{}, err
	}
	log.Info("store.postgres", "schema", cfg.DBSchema, "auto_migrate", cfg.AutoMigrate)
	return be, nil
}

func postgresBackend(ctx context.Context, cfg Config, pool *pgxpool.Pool) (backend, error) {
	if cfg.AutoMigrate {
		if err := dbschema.Apply(ctx, pool, cfg.DBSchema); err != nil {
			return backend{}, err
		}
	}

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return backend{}, err
	}
	sessions, err := session.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return backend{}, err
	}
	challenges, err := challenge.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return backend{}, err
	}
	merges, err := merge.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return backend{}, err
	}
	magic, err := magiclink.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return backend{}, err
	}
	auditLog, err := audit.NewPostgresLog(pool, cfg.DBSchema)
	if err != nil {
		return backend{}, err
	}

	return backend{
		users:      users,
		sessions:   sessions,
		challenges: challenges,
		merges:     merges,
		magic:      magic,
		audit:      auditLog,
		pool:       pool,
	}, nil
}

func newAlerter(cfg Config, log *slog.Logger) Alerter {
	if cfg.Alert.WebhookURL == "" {
		return notify.Nop{}
	}
	wh, err := notify.NewWebhook(cfg.Alert, log)
	if err != nil {
		log.Error("alert.webhook.disabled", "err", err)
		return notify.Nop{}
	}
	return wh
}

// newMagicLinks sends through SMTP when configured. Outside production the
// links are logged instead; Validate rejects that combination in production.
func newMagicLinks(ctx context.Context, cfg Config, log *slog.Logger, st magiclink.Store) (*magiclink.Service, error) {
	mlCfg, err := magiclink.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	var mailer magiclink.Mailer = mail.LogMailer{Log: log}
	if cfg.SMTP.Configured() {
		smtp, err := mail.NewSMTP(cfg.SMTP, log)
		if err != nil {
			return nil, err
		}
		mailer = smtp
	} else {
		log.Warn("mail.smtp.unconfigured", "msg", "magic links are written to the log")
	}
	return magiclink.NewService(mlCfg, st, mailer, cfg.TokenHasher())
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.router() }

// Close releases the health cache and the database pool.
func (a *App) Close() {
	a.health.Close()
	a.backend.close()
}

// Run starts the HTTP server and blocks until context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.Store, "env", a.cfg.Env)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return fmt.Errorf("app: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
