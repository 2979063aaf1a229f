package authapi

import (
	"net/http"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
	"userbase/cmd/internal/auth/provision"
	"userbase/cmd/internal/auth/session"
)

func (h *Handler) handleBootstrapChallenge(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "auth.bootstrap.challenge", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "auth.bootstrap.challenge", err)
		return
	}

	issued, err := h.provision.IssueLoginChallenge(r.Context(), t, req.Identifier, time.Now().UTC())
	if err != nil {
		h.writeError(w, r, "auth.bootstrap.challenge", err)
		return
	}
	writeOK(w, map[string]any{"challenge": toChallengeResponse(issued)})
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req bootstrapRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "auth.bootstrap", err)
		return
	}
	if retry, err := h.throttle(ctx, r, audit.ActionBootstrapFailed, h.cfg.BootstrapIPMax, h.cfg.BootstrapIPWindow, now); err != nil {
		setRetryAfter(w, retry)
		h.metrics.AuthEvent("bootstrap", outcome(err))
		h.writeError(w, r, "auth.bootstrap", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "auth.bootstrap", err)
		return
	}

	res, err := h.provision.BootstrapIdentity(ctx, provision.IdentityInput{
		RefreshToken: h.refreshTokenFromCookie(r),
		Type:         t,
		Identifier:   req.Identifier,
		Signature:    req.Signature,
		PublicKey:    req.PublicKey,
		Profile:      provision.Profile{Handle: req.Handle, DisplayName: req.DisplayName, AvatarURL: req.AvatarURL},
		Device:       h.device(r, req.DeviceID),
		Now:          now,
	})
	h.metrics.AuthEvent("bootstrap", outcome(err))
	if err != nil {
		if s := statusFor(err); s == http.StatusUnauthorized || s == http.StatusForbidden {
			h.record(ctx, r, audit.Entry{
				Action: audit.ActionBootstrapFailed,
				Meta:   map[string]any{"type": string(t), "identifier": req.Identifier, "reason": codeFor(err)},
				At:     now,
			})
		}
		h.writeError(w, r, "auth.bootstrap", err)
		return
	}

	h.respondBootstrap(w, r, res, req.Transport, now, map[string]any{"type": string(t)})
}

func (h *Handler) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req magicLinkRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "auth.magic_link.request", err)
		return
	}
	if retry, err := h.throttle(ctx, r, audit.ActionMagicLinkRequested, h.cfg.MagicLinkIPMax, h.cfg.MagicLinkIPWindow, now); err != nil {
		setRetryAfter(w, retry)
		h.writeError(w, r, "auth.magic_link.request", err)
		return
	}

	sent, err := h.magic.Request(ctx, req.Email, clientIP(r, h.cfg.TrustProxy), now)
	h.metrics.AuthEvent("magic_link_request", outcome(err))
	if err != nil {
		h.writeError(w, r, "auth.magic_link.request", err)
		return
	}

	h.record(ctx, r, audit.Entry{
		Action: audit.ActionMagicLinkRequested,
		Meta:   map[string]any{"magic_link_id": sent.ID},
		At:     now,
	})
	writeOK(w, map[string]any{"expires_at": sent.ExpiresAt})
}

func (h *Handler) handleMagicLinkVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req magicLinkVerifyRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "auth.magic_link.verify", err)
		return
	}

	email, err := h.magic.Consume(ctx, req.Token, now)
	if err != nil {
		h.metrics.AuthEvent("magic_link_verify", outcome(err))
		h.writeError(w, r, "auth.magic_link.verify", err)
		return
	}

	// The link proves the email, so an existing refresh cookie is not consulted.
	res, err := h.provision.Bootstrap(ctx, provision.Input{
		Credential: &provision.Credential{Email: email},
		Profile:    provision.Profile{Handle: req.Handle, DisplayName: req.DisplayName, AvatarURL: req.AvatarURL},
		Device:     h.device(r, req.DeviceID),
		Now:        now,
	})
	h.metrics.AuthEvent("magic_link_verify", outcome(err))
	if err != nil {
		h.writeError(w, r, "auth.magic_link.verify", err)
		return
	}

	h.record(ctx, r, audit.Entry{Action: audit.ActionMagicLinkConsumed, UserID: res.User.ID, SessionID: res.SessionID, At: now})
	h.respondBootstrap(w, r, res, req.Transport, now, map[string]any{"type": "email"})
}

func (h *Handler) respondBootstrap(w http.ResponseWriter, r *http.Request, res provision.Result, transport string, now time.Time, meta map[string]any) {
	sess, err := h.sessionBody(w, res, transport, now)
	if err != nil {
		h.writeError(w, r, "auth.bootstrap.token", err)
		return
	}

	meta["created"] = res.Created
	meta["resumed"] = res.Resumed
	if res.TrustTier != "" {
		meta["trust"] = res.TrustTier
	}
	h.record(r.Context(), r, audit.Entry{
		Action:    audit.ActionBootstrapSuccess,
		UserID:    res.User.ID,
		SessionID: res.SessionID,
		Meta:      meta,
		At:        now,
	})

	out := map[string]any{
		"user":    toUserResponse(res.User),
		"created": res.Created,
		"resumed": res.Resumed,
		"session": sess,
	}
	if res.TrustTier != "" {
		out["trust_tier"] = res.TrustTier
	}
	writeOK(w, out)
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req exchangeRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, &req); err != nil {
			h.writeError(w, r, "auth.exchange", err)
			return
		}
	}
	raw := req.RefreshToken
	if raw == "" {
		raw = h.refreshTokenFromCookie(r)
	}

	res, err := h.provision.Exchange(ctx, raw, now)
	h.metrics.AuthEvent("exchange", outcome(err))
	if err != nil {
		h.writeError(w, r, "auth.exchange", err)
		return
	}

	sess, err := h.sessionBody(w, res, "", now)
	if err != nil {
		h.writeError(w, r, "auth.exchange.token", err)
		return
	}
	writeOK(w, map[string]any{"user": toUserResponse(res.User), "session": sess})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)
	now := time.Now().UTC()

	if err := h.sessions.Revoke(ctx, now, p.SessionID); err != nil {
		h.writeError(w, r, "auth.logout", err)
		return
	}

	h.record(ctx, r, audit.Entry{Action: audit.ActionLogout, UserID: p.UserID, SessionID: p.SessionID, At: now})
	h.clearRefreshCookie(w)
	writeOK(w, nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)
	now := time.Now().UTC()

	n, err := h.sessions.RevokeAll(ctx, now, p.UserID)
	if err != nil {
		h.writeError(w, r, "auth.logout_all", err)
		return
	}

	h.record(ctx, r, audit.Entry{Action: audit.ActionLogoutAll, UserID: p.UserID, Meta: map[string]any{"revoked": n}, At: now})
	h.clearRefreshCookie(w)
	writeOK(w, map[string]any{"revoked": n})
}

// handleKeys publishes the access-token verification key so other services
// can check tokens offline.
func (h *Handler) handleKeys(w http.ResponseWriter, r *http.Request) {
	ks := h.sessions.Keys()
	writeOK(w, map[string]any{
		"issuer":   ks.Issuer,
		"audience": ks.Audience,
		"keys": []map[string]string{{
			"kid":            ks.KeyID,
			"alg":            session.AccessTokenAlg,
			"version":        session.AccessTokenVersion,
			"public_key_hex": ks.PublicKeyHex,
		}},
	})
}
