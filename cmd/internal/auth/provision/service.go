package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/session"
	"userbase/cmd/internal/auth/verify"
)

const maxDisplayNameLen = 64

// Sessions is the subset of session.Service used here.
type Sessions interface {
	Issue(ctx context.Context, now time.Time, userID string, dev session.Device) (session.Issued, error)
	Validate(ctx context.Context, raw string, now time.Time) (identity.Session, error)
}

// Challenges is the subset of challenge.Service used here.
type Challenges interface {
	Issue(ctx context.Context, scope identity.ChallengeScope, now time.Time) (challenge.Issued, error)
	Prove(ctx context.Context, scope identity.ChallengeScope, v verify.IdentityVerifier, p verify.Proof, now time.Time) (identity.Challenge, verify.Result, error)
	Consume(ctx context.Context, id string, now time.Time) error
}

// Alerter receives operational failures worth paging on.
type Alerter interface {
	Alert(ctx context.Context, event string, fields map[string]any)
}

// Profile carries optional hints used for new accounts and fill-in-blank backfill.
type Profile struct {
	Handle      string
	DisplayName string
	AvatarURL   string
}

// Credential is an already proven identity or email address.
// Email is set for the email entry point; otherwise Type and Identifier are.
type Credential struct {
	Type       identity.IdentityType
	Identifier string
	Tier       verify.TrustTier
	Metadata   map[string]any

	Email string
}

func (c Credential) isEmail() bool { return c.Email != "" }

// Input is the shared bootstrap request.
type Input struct {
	// RefreshToken, when valid, short-circuits to the session's user.
	RefreshToken string
	Credential   *Credential
	Profile      Profile
	Device       session.Device
	Now          time.Time
}

// Result describes the outcome of a bootstrap.
type Result struct {
	User    identity.User
	Created bool
	// Resumed is true when an existing session was reused; Session is nil then.
	Resumed   bool
	SessionID string
	Session   *session.Issued
	// TrustTier is the verifier tier of a chain credential ("cryptographic"
	// or "self_reported"); empty for email and resumed sessions.
	TrustTier string
}

// Service runs the find-or-create algorithm.
type Service struct {
	cfg        Config
	users      identity.Store
	sessions   Sessions
	challenges Challenges
	verifiers  *verify.Registry
	log        *slog.Logger
	alert      Alerter
	suffix     func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alert = a }
}

// WithSuffixFunc replaces the random collision suffix generator.
func WithSuffixFunc(f func() (string, error)) Option {
	return func(s *Service) {
		if f != nil {
			s.suffix = f
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, users identity.Store, sessions Sessions, challenges Challenges, verifiers *verify.Registry, opts ...Option) (*Service, error) {
	if users == nil || sessions == nil || challenges == nil || verifiers == nil {
		return nil, fmt.Errorf("provision: missing dependency")
	}
	if cfg.HandleMaxAttempts < 1 {
		cfg.HandleMaxAttempts = DefaultConfig().HandleMaxAttempts
	}
	s := &Service{
		cfg:        cfg,
		users:      users,
		sessions:   sessions,
		challenges: challenges,
		verifiers:  verifiers,
		log:        slog.Default(),
		suffix:     randomSuffix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Bootstrap resumes a valid session or finds-or-creates the credential's
// account and issues a new session for it.
func (s *Service) Bootstrap(ctx context.Context, in Input) (Result, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if strings.TrimSpace(in.RefreshToken) != "" {
		res, err := s.resume(ctx, in.RefreshToken, now)
		if err == nil {
			return res, nil
		}
		// A stale cookie must not block a fresh login.
		if in.Credential == nil || !errors.Is(err, identity.ErrUnauthenticated) {
			return Result{}, err
		}
	}
	if in.Credential == nil {
		return Result{}, ErrCredentialRequired
	}

	cred, err := normalizeCredential(*in.Credential)
	if err != nil {
		return Result{}, err
	}
	prof, err := normalizeProfile(in.Profile)
	if err != nil {
		return Result{}, err
	}

	user, created, err := s.findOrCreate(ctx, cred, prof, now)
	if err != nil {
		return Result{}, err
	}

	trust := trustTier(cred)
	dev := in.Device
	dev.Method = credentialKind(cred)
	dev.Trust = trust
	sess, err := s.sessions.Issue(ctx, now, user.ID, dev)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("provision.bootstrap",
		"user_id", user.ID,
		"created", created,
		"credential", credentialKind(cred),
		"trust", trust,
	)
	return Result{User: user, Created: created, SessionID: sess.SessionID, Session: &sess, TrustTier: trust}, nil
}

// Exchange resolves a refresh token to its active user without issuing a new session.
func (s *Service) Exchange(ctx context.Context, raw string, now time.Time) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, ErrCredentialRequired
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.resume(ctx, raw, now)
}

// IdentityInput is a wallet/chain bootstrap request.
type IdentityInput struct {
	RefreshToken string
	Type         identity.IdentityType
	Identifier   string
	Signature    string
	PublicKey    string
	Profile      Profile
	Device       session.Device
	Now          time.Time
}

// IssueLoginChallenge issues an anonymous login challenge for a cryptographic identity type.
func (s *Service) IssueLoginChallenge(ctx context.Context, t identity.IdentityType, identifier string, now time.Time) (challenge.Issued, error) {
	v, err := s.verifiers.For(t)
	if err != nil {
		return challenge.Issued{}, err
	}
	if v.Tier() != verify.TierCryptographic {
		return challenge.Issued{}, ErrChallengeNotRequired
	}
	id, err := identity.NormalizeIdentifier(t, identifier)
	if err != nil {
		return challenge.Issued{}, err
	}
	return s.challenges.Issue(ctx, loginScope(t, id), now)
}

// BootstrapIdentity proves control of a chain identity and bootstraps its account.
// Cryptographic types need a signature over the active login challenge, which
// is consumed only after the signature checks out.
func (s *Service) BootstrapIdentity(ctx context.Context, in IdentityInput) (Result, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if strings.TrimSpace(in.RefreshToken) != "" {
		res, err := s.resume(ctx, in.RefreshToken, now)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, identity.ErrUnauthenticated) {
			return Result{}, err
		}
	}

	v, err := s.verifiers.For(in.Type)
	if err != nil {
		return Result{}, err
	}
	id, err := identity.NormalizeIdentifier(in.Type, in.Identifier)
	if err != nil {
		return Result{}, err
	}

	var res verify.Result
	if v.Tier() == verify.TierCryptographic {
		var c identity.Challenge
		c, res, err = s.challenges.Prove(ctx, loginScope(in.Type, id), v, verify.Proof{
			Signature: in.Signature,
			PublicKey: in.PublicKey,
		}, now)
		if err != nil {
			return Result{}, err
		}
		if err := s.challenges.Consume(ctx, c.ID, now); err != nil {
			return Result{}, err
		}
	} else {
		res, err = v.Verify(ctx, verify.Proof{Identifier: id})
		if err != nil {
			return Result{}, err
		}
	}

	return s.Bootstrap(ctx, Input{
		Credential: &Credential{Type: in.Type, Identifier: id, Tier: v.Tier(), Metadata: res.Metadata},
		Profile:    in.Profile,
		Device:     in.Device,
		Now:        now,
	})
}

func (s *Service) resume(ctx context.Context, raw string, now time.Time) (Result, error) {
	sess, err := s.sessions.Validate(ctx, raw, now)
	if err != nil {
		return Result{}, err
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return Result{}, err
	}
	if err := checkStatus(user); err != nil {
		return Result{}, err
	}
	return Result{User: user, Resumed: true, SessionID: sess.ID}, nil
}

func (s *Service) findOrCreate(ctx context.Context, cred Credential, p Profile, now time.Time) (identity.User, bool, error) {
	userID, err := s.lookup(ctx, cred)
	switch {
	case err == nil:
		u, err := s.existing(ctx, userID, cred, p, now)
		return u, false, err
	case !identity.IsNotFound(err):
		return identity.User{}, false, err
	}

	in := identity.CreateAccountInput{
		DisplayName: optional(p.DisplayName),
		AvatarURL:   optional(p.AvatarURL),
		Now:         now,
	}
	var base string
	if cred.isEmail() {
		in.AuthMethod = &identity.NewAuthMethod{Type: identity.AuthMethodEmail, Identifier: cred.Email, Verified: true}
		base = identity.HandleBase(p.Handle, "", cred.Email)
	} else {
		in.Identity = &identity.NewIdentity{Type: cred.Type, Identifier: cred.Identifier, Metadata: cred.Metadata}
		base = identity.HandleBase(p.Handle, cred.Type, cred.Identifier)
	}

	res, err := s.createAccount(ctx, base, in)
	if err == nil {
		return res.User, true, nil
	}

	// A concurrent bootstrap of the same credential won; reuse its account.
	if ce, ok := identity.AsConflict(err); ok && (ce.Field == "identity" || ce.Field == "auth_method") {
		if userID, lerr := s.lookup(ctx, cred); lerr == nil {
			u, err := s.existing(ctx, userID, cred, p, now)
			return u, false, err
		}
	}

	if errors.Is(err, identity.ErrDependency) {
		s.log.Error("provision.create.fail", "credential", credentialKind(cred), "err", err)
		if s.alert != nil {
			s.alert.Alert(ctx, "account_creation_failed", map[string]any{
				"credential": credentialKind(cred),
				"error":      err.Error(),
			})
		}
	}
	return identity.User{}, false, err
}

func (s *Service) lookup(ctx context.Context, cred Credential) (string, error) {
	if cred.isEmail() {
		m, err := s.users.FindAuthMethod(ctx, identity.AuthMethodEmail, cred.Email)
		if err != nil {
			return "", err
		}
		return m.UserID, nil
	}
	i, err := s.users.FindIdentity(ctx, cred.Type, cred.Identifier)
	if err != nil {
		return "", err
	}
	return i.UserID, nil
}

// existing logs into the credential's owner, filling in blank profile fields.
func (s *Service) existing(ctx context.Context, userID string, cred Credential, p Profile, now time.Time) (identity.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	if err := checkStatus(u); err != nil {
		return identity.User{}, err
	}

	var patch identity.ProfilePatch
	if u.DisplayName == nil {
		patch.DisplayName = optional(p.DisplayName)
	}
	if u.AvatarURL == nil {
		patch.AvatarURL = optional(p.AvatarURL)
	}
	if u.Handle == nil {
		base := identity.HandleBase(p.Handle, cred.Type, cred.Identifier)
		if cred.isEmail() {
			base = identity.HandleBase(p.Handle, "", cred.Email)
		}
		h, err := s.allocateHandle(ctx, base)
		switch {
		case err == nil:
			patch.Handle = &h
		case errors.Is(err, identity.ErrCapacity):
			s.log.Warn("provision.handle_backfill.skip", "user_id", u.ID, "err", err)
		default:
			return identity.User{}, err
		}
	}
	if patch == (identity.ProfilePatch{}) {
		return u, nil
	}
	return s.users.BackfillProfile(ctx, u.ID, patch, now)
}

func checkStatus(u identity.User) error {
	switch u.Status {
	case identity.StatusActive:
		return nil
	case identity.StatusSuspended:
		return ErrAccountSuspended
	default:
		return identity.OpError{Op: "provision.checkStatus", Kind: identity.ErrNotActive, Msg: "account is " + string(u.Status)}
	}
}

func normalizeCredential(c Credential) (Credential, error) {
	if c.isEmail() {
		e, err := identity.ValidateEmail(c.Email)
		if err != nil {
			return Credential{}, err
		}
		return Credential{Email: e}, nil
	}
	id, err := identity.NormalizeIdentifier(c.Type, c.Identifier)
	if err != nil {
		return Credential{}, err
	}
	c.Identifier = id
	return c, nil
}

func normalizeProfile(p Profile) (Profile, error) {
	const op = "provision.normalizeProfile"

	p.Handle = strings.TrimSpace(p.Handle)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.AvatarURL = strings.TrimSpace(p.AvatarURL)

	if utf8.RuneCountInString(p.DisplayName) > maxDisplayNameLen {
		return Profile{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "display name too long"}
	}
	if p.AvatarURL != "" {
		u, err := url.Parse(p.AvatarURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return Profile{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "avatar url must be http(s)"}
		}
	}
	return p, nil
}

func loginScope(t identity.IdentityType, id string) identity.ChallengeScope {
	return identity.ChallengeScope{Purpose: identity.PurposeLogin, Type: t, Identifier: id}
}

func credentialKind(c Credential) string {
	if c.isEmail() {
		return string(identity.AuthMethodEmail)
	}
	return string(c.Type)
}

func trustTier(c Credential) string {
	if c.isEmail() {
		return ""
	}
	return c.Tier.String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
