package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Token format constants, published on the keys endpoint.
const (
	AccessTokenVersion = "v4.public"
	AccessTokenAlg     = "ed25519"

	// MethodRefresh marks access tokens minted from an existing session.
	MethodRefresh = "refresh"
)

// AccessGrant is what an access token asserts about its holder.
// Method is the credential kind that opened the session (hive, evm,
// farcaster, email) or MethodRefresh. Trust is the verifier's trust tier and
// is empty for email and refreshed tokens.
type AccessGrant struct {
	UserID    string
	SessionID string
	Method    string
	Trust     string
}

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	AccessGrant
	KeyID     string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(g AccessGrant, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	Keys() KeySet
}

// KeySet describes how relying services verify access tokens offline.
type KeySet struct {
	KeyID        string
	PublicKeyHex string
	Issuer       string
	Audience     string
}

type footer struct {
	KeyID string `json:"kid"`
}

// pasetoAccessTokens signs v4.public tokens with sub=user, sid=session and
// the amr/trust claims. The footer carries the key id.
type pasetoAccessTokens struct {
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration

	kid    string
	footer []byte
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds an AccessTokenManager from cfg's Ed25519 key.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: paseto secret key: %v", ErrConfig, err)
	}
	public := secret.Public()
	kid := keyID(public)
	ft, err := json.Marshal(footer{KeyID: kid})
	if err != nil {
		return nil, err
	}
	return &pasetoAccessTokens{
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		kid:       kid,
		footer:    ft,
		secret:    secret,
		public:    public,
	}, nil
}

// keyID is the first 8 bytes of SHA-256 over the public key, hex encoded.
func keyID(pub paseto.V4AsymmetricPublicKey) string {
	sum := sha256.Sum256(pub.ExportBytes())
	return hex.EncodeToString(sum[:8])
}

func (m *pasetoAccessTokens) Keys() KeySet {
	return KeySet{
		KeyID:        m.kid,
		PublicKeyHex: m.public.ExportHex(),
		Issuer:       m.issuer,
		Audience:     m.audience,
	}
}

func (m *pasetoAccessTokens) Issue(g AccessGrant, now time.Time) (string, time.Time, error) {
	if g.UserID == "" || g.SessionID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetAudience(m.audience)
	tok.SetSubject(g.UserID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("sid", g.SessionID)
	if g.Method != "" {
		tok.SetString("amr", g.Method)
	}
	if g.Trust != "" {
		tok.SetString("trust", g.Trust)
	}
	tok.SetFooter(m.footer)

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoAccessTokens) Verify(token string, now time.Time) (AccessClaims, error) {
	p := paseto.NewParser()
	p.AddRule(
		paseto.IssuedBy(m.issuer),
		paseto.ForAudience(m.audience),
		paseto.NotExpired(),
		// nbf may be slightly ahead of a lagging verifier clock.
		paseto.ValidAt(now.Add(m.clockSkew)),
	)

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	var ft footer
	if err := json.Unmarshal(parsed.Footer(), &ft); err != nil || ft.KeyID != m.kid {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	amr, _ := parsed.GetString("amr")
	trust, _ := parsed.GetString("trust")
	iat, _ := parsed.GetIssuedAt()
	exp, _ := parsed.GetExpiration()

	return AccessClaims{
		AccessGrant: AccessGrant{UserID: sub, SessionID: sid, Method: amr, Trust: trust},
		KeyID:       ft.KeyID,
		Issuer:      m.issuer,
		Audience:    m.audience,
		IssuedAt:    iat,
		ExpiresAt:   exp,
	}, nil
}
