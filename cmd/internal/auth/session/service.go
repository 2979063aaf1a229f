package session

import (
	"context"
	"strings"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/security/token"
)

// maxRawTokenLen bounds presented tokens to avoid pathological inputs.
const maxRawTokenLen = 4096

// Service implements session issuance, validation and revocation.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
	hasher token.Hasher
}

// Issued is the result of issuing a session.
// RefreshToken is the only copy of the raw secret; it must reach the client
// once and never be logged.
type Issued struct {
	SessionID    string
	RefreshToken string
	RefreshExp   time.Time
	AccessToken  string
	AccessExp    time.Time
}

// NewService constructs a Service. hasher digests refresh tokens before they
// reach the store.
func NewService(cfg Config, store Store, tokens AccessTokenManager, hasher token.Hasher) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens, hasher: hasher}
}

// Issue creates a new session for userID and returns its raw refresh token.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string, dev Device) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	raw, err := token.NewOpaque(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Issued{}, err
	}
	exp := now.Add(s.cfg.SessionTTL)

	row := identity.Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: s.hasher.Hash(raw),
		CreatedAt:        now,
		ExpiresAt:        exp,
		UserAgent:        nonEmpty(dev.UserAgent),
		DeviceID:         nonEmpty(dev.DeviceID),
	}
	if dev.IP != nil {
		ip := dev.IP
		row.IP = &ip
	}
	if err := s.store.CreateSession(ctx, row); err != nil {
		return Issued{}, err
	}

	access, accessExp, err := s.tokens.Issue(AccessGrant{
		UserID:    userID,
		SessionID: id,
		Method:    dev.Method,
		Trust:     dev.Trust,
	}, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    id,
		RefreshToken: raw,
		RefreshExp:   exp,
		AccessToken:  access,
		AccessExp:    accessExp,
	}, nil
}

// Validate resolves a raw refresh token to its session.
// It returns ErrSessionNotFound, ErrSessionRevoked or ErrSessionExpired.
func (s *Service) Validate(ctx context.Context, raw string, now time.Time) (identity.Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRawTokenLen {
		return identity.Session{}, ErrSessionNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash := s.hasher.Hash(raw)
	row, err := s.store.SessionByRefreshHash(ctx, hash)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.Session{}, ErrSessionNotFound
		}
		return identity.Session{}, err
	}
	if !token.EqualHex64(row.RefreshTokenHash, hash) {
		return identity.Session{}, ErrSessionNotFound
	}
	return row, checkActive(row, now)
}

// IssueAccessToken issues a short-lived access token for an existing session.
// Tokens minted this way carry MethodRefresh.
func (s *Service) IssueAccessToken(userID, sessionID string, now time.Time) (string, time.Time, error) {
	return s.tokens.Issue(AccessGrant{UserID: userID, SessionID: sessionID, Method: MethodRefresh}, now)
}

// ValidateAccessToken verifies an access token and ensures the backing session is active.
func (s *Service) ValidateAccessToken(ctx context.Context, tok string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(tok, now)
	if err != nil {
		return AccessClaims{}, err
	}

	row, err := s.store.SessionByID(ctx, claims.SessionID)
	if err != nil {
		if identity.IsNotFound(err) {
			return AccessClaims{}, ErrSessionNotFound
		}
		return AccessClaims{}, err
	}
	// A merge may move the session to another user; the old token is then stale.
	if row.UserID != claims.UserID {
		return AccessClaims{}, ErrInvalidToken
	}
	if err := checkActive(row, now); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// Revoke revokes a single session by ID (logout from a device).
func (s *Service) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.RevokeSession(ctx, now, sessionID, ReasonLogout)
}

// RevokeAll revokes all sessions for a user (logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string) (int, error) {
	return s.store.RevokeUserSessions(ctx, now, userID, ReasonLogoutAll)
}

// Keys exposes the access-token verification key and expected claims.
func (s *Service) Keys() KeySet { return s.tokens.Keys() }

func checkActive(row identity.Session, now time.Time) error {
	if row.RevokedAt != nil {
		return ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return ErrSessionExpired
	}
	return nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
