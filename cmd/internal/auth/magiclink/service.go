package magiclink

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/url"
	"strings"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/security/token"
)

var bodyTmpl = template.Must(template.New("magic-link").Parse(`<p>Use the link below to sign in. It expires at {{.ExpiresAt}} and works once.</p>
<p><a href="{{.Link}}">Sign in</a></p>
<p>If you did not request this, ignore this email.</p>
`))

// Requested describes an issued link without exposing its secret.
type Requested struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

// Service issues and redeems single-use email sign-in links.
type Service struct {
	cfg    Config
	store  Store
	mailer Mailer
	hasher token.Hasher
}

// NewService constructs a Service. Tokens are stored as hasher digests.
func NewService(cfg Config, store Store, mailer Mailer, hasher token.Hasher) (*Service, error) {
	if store == nil || mailer == nil {
		return nil, fmt.Errorf("%w: nil store or mailer", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, store: store, mailer: mailer, hasher: hasher}, nil
}

// Request creates a token for email and mails the link.
func (s *Service) Request(ctx context.Context, email string, ip net.IP, now time.Time) (Requested, error) {
	addr, err := identity.ValidateEmail(email)
	if err != nil {
		return Requested{}, ErrInvalidEmail
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	raw, err := token.NewOpaque(s.cfg.TokenBytes)
	if err != nil {
		return Requested{}, err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Requested{}, err
	}

	t := identity.MagicLinkToken{
		ID:        id,
		Email:     addr,
		TokenHash: s.hasher.Hash(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if ip != nil {
		t.RequestedIP = &ip
	}
	if err := s.store.InsertMagicLink(ctx, t); err != nil {
		return Requested{}, err
	}

	body, err := s.render(raw, t.ExpiresAt)
	if err != nil {
		return Requested{}, err
	}
	if err := s.mailer.Send(ctx, addr, s.cfg.Subject, body); err != nil {
		return Requested{}, fmt.Errorf("magiclink.Request: %w: %w", identity.ErrDependency, err)
	}
	return Requested{ID: id, Email: addr, ExpiresAt: t.ExpiresAt}, nil
}

// Consume redeems a raw token and returns the verified email address.
func (s *Service) Consume(ctx context.Context, raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 512 {
		return "", ErrInvalidMagicLink
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	t, err := s.store.ConsumeMagicLink(ctx, s.hasher.Hash(raw), now)
	if err != nil {
		if identity.IsNotFound(err) {
			return "", ErrInvalidMagicLink
		}
		return "", err
	}
	return t.Email, nil
}

func (s *Service) render(raw string, exp time.Time) (string, error) {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()

	var buf bytes.Buffer
	err = bodyTmpl.Execute(&buf, struct {
		Link      string
		ExpiresAt string
	}{Link: u.String(), ExpiresAt: exp.UTC().Format(time.RFC1123)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
