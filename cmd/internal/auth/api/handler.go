package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
	"userbase/cmd/internal/auth/link"
	"userbase/cmd/internal/auth/magiclink"
	"userbase/cmd/internal/auth/merge"
	"userbase/cmd/internal/auth/provision"
	"userbase/cmd/internal/auth/session"
)

// Metrics counts auth flow outcomes.
type Metrics interface {
	AuthEvent(event, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) AuthEvent(string, string) {}

// Deps are the services every handler needs.
type Deps struct {
	Users     identity.Store
	Sessions  *session.Service
	Provision *provision.Service
	Links     *link.Service
	Merges    *merge.Engine
}

// Handler wires HTTP auth endpoints to the identity, session, link and merge services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users     identity.Store
	sessions  *session.Service
	provision *provision.Service
	links     *link.Service
	merges    *merge.Engine

	magic   *magiclink.Service
	audit   audit.Log
	metrics Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMagicLinks enables the email entry point.
func WithMagicLinks(s *magiclink.Service) HandlerOption {
	return func(h *Handler) { h.magic = s }
}

// WithAudit enables audit rows and the IP throttles that count them.
func WithAudit(l audit.Log) HandlerOption {
	return func(h *Handler) { h.audit = l }
}

func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, d Deps, opts ...HandlerOption) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Users == nil || d.Sessions == nil || d.Provision == nil || d.Links == nil || d.Merges == nil {
		return nil, errors.New("authapi: missing dependency")
	}

	h := &Handler{
		log:       slog.Default(),
		cfg:       cfg,
		users:     d.Users,
		sessions:  d.Sessions,
		provision: d.Provision,
		links:     d.Links,
		merges:    d.Merges,
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes registers the auth and account endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/bootstrap/challenge", h.handleBootstrapChallenge)
		r.Post("/bootstrap", h.handleBootstrap)
		r.Post("/session/exchange", h.handleExchange)
		r.Get("/keys", h.handleKeys)
		if h.magic != nil {
			r.Post("/magic-link", h.handleMagicLinkRequest)
			r.Post("/magic-link/verify", h.handleMagicLinkVerify)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Post("/logout_all", h.handleLogoutAll)
		})
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.handleMe)
		r.Get("/identities", h.handleListIdentities)
		r.Post("/identities/challenge", h.handleLinkChallenge)
		r.Post("/identities", h.handleLink)
		r.Get("/merge/preview", h.handleMergePreview)
		r.Post("/merge/challenge", h.handleMergeChallenge)
		r.Post("/merge", h.handleMerge)
	})
}

// ---- authentication ----

type principal struct {
	UserID    string
	SessionID string
}

type principalKey struct{}

// requireAuth accepts a bearer access token or the refresh cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticate(r.Context(), r, time.Now().UTC())
		if err != nil {
			h.writeError(w, r, "auth.authenticate", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func (h *Handler) authenticate(ctx context.Context, r *http.Request, now time.Time) (principal, error) {
	if tok := bearerToken(r); tok != "" {
		claims, err := h.sessions.ValidateAccessToken(ctx, tok, now)
		if err != nil {
			return principal{}, err
		}
		return principal{UserID: claims.UserID, SessionID: claims.SessionID}, nil
	}
	if raw := h.refreshTokenFromCookie(r); raw != "" {
		sess, err := h.sessions.Validate(ctx, raw, now)
		if err != nil {
			return principal{}, err
		}
		return principal{UserID: sess.UserID, SessionID: sess.ID}, nil
	}
	return principal{}, errMissingCredentials
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// ---- shared request plumbing ----

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		return identity.OpError{Op: "authapi.decode", Kind: errInvalidJSON, Msg: err.Error()}
	}
	return nil
}

func (h *Handler) device(r *http.Request, deviceID string) session.Device {
	return session.Device{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		DeviceID:  strings.TrimSpace(deviceID),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

// outcome is "ok" for nil and the wire code otherwise.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return codeFor(err)
}

// sessionBody renders the session part of a bootstrap or exchange response.
// New refresh tokens go to the cookie unless the client asked for body
// transport; they are never returned twice.
func (h *Handler) sessionBody(w http.ResponseWriter, res provision.Result, transport string, now time.Time) (sessionResponse, error) {
	if res.Session == nil {
		access, accessExp, err := h.sessions.IssueAccessToken(res.User.ID, res.SessionID, now)
		if err != nil {
			return sessionResponse{}, err
		}
		return sessionResponse{SessionID: res.SessionID, AccessToken: access, AccessExpiresAt: accessExp}, nil
	}
	out := sessionResponse{
		SessionID:       res.SessionID,
		AccessToken:     res.Session.AccessToken,
		AccessExpiresAt: res.Session.AccessExp,
	}
	exp := res.Session.RefreshExp
	out.RefreshExpiresAt = &exp
	if wantsBodyTransport(transport) {
		out.RefreshToken = res.Session.RefreshToken
	} else {
		h.setRefreshCookie(w, res.Session.RefreshToken, exp)
	}
	return out, nil
}
