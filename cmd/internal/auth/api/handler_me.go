package authapi

import (
	"net/http"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
	"userbase/cmd/internal/auth/link"
	"userbase/cmd/internal/auth/merge"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)

	u, err := h.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		h.writeError(w, r, "me.get", err)
		return
	}
	ids, err := h.users.ListIdentities(ctx, p.UserID)
	if err != nil {
		h.writeError(w, r, "me.get", err)
		return
	}
	writeOK(w, map[string]any{
		"user":       toUserResponse(u),
		"identities": toIdentityResponses(ids),
		"session_id": p.SessionID,
	})
}

func (h *Handler) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.users.ListIdentities(ctx, principalFrom(ctx).UserID)
	if err != nil {
		h.writeError(w, r, "me.identities", err)
		return
	}
	writeOK(w, map[string]any{"identities": toIdentityResponses(ids)})
}

func (h *Handler) handleLinkChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req identityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "link.challenge", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "link.challenge", err)
		return
	}

	issued, err := h.links.IssueChallenge(ctx, principalFrom(ctx).UserID, t, req.Identifier, time.Now().UTC())
	if err != nil {
		h.writeError(w, r, "link.challenge", err)
		return
	}
	writeOK(w, map[string]any{"challenge": toChallengeResponse(issued)})
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)
	now := time.Now().UTC()

	var req linkRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "link", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "link", err)
		return
	}

	res, err := h.links.Link(ctx, link.Input{
		ActorUserID: p.UserID,
		Type:        t,
		Identifier:  req.Identifier,
		Signature:   req.Signature,
		PublicKey:   req.PublicKey,
		Metadata:    req.Metadata,
		Now:         now,
	})
	h.metrics.AuthEvent("link", outcome(err))
	if err != nil {
		h.writeError(w, r, "link", err)
		return
	}

	if res.Created {
		h.record(ctx, r, audit.Entry{
			Action:    audit.ActionLinkSuccess,
			UserID:    p.UserID,
			SessionID: p.SessionID,
			Meta:      map[string]any{"identity_id": res.Identity.ID, "type": string(t)},
			At:        now,
		})
	}
	writeOK(w, map[string]any{"identity": toIdentityResponse(res.Identity), "created": res.Created})
}

func (h *Handler) handleMergePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	t, err := identity.ParseIdentityType(q.Get("type"))
	if err != nil {
		h.writeError(w, r, "merge.preview", err)
		return
	}
	pv, err := h.merges.Preview(ctx, principalFrom(ctx).UserID, t, q.Get("identifier"))
	if err != nil {
		h.writeError(w, r, "merge.preview", err)
		return
	}
	writeOK(w, map[string]any{"preview": pv})
}

func (h *Handler) handleMergeChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req identityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "merge.challenge", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "merge.challenge", err)
		return
	}

	issued, err := h.merges.IssueChallenge(ctx, principalFrom(ctx).UserID, t, req.Identifier, time.Now().UTC())
	if err != nil {
		h.writeError(w, r, "merge.challenge", err)
		return
	}
	writeOK(w, map[string]any{"challenge": toChallengeResponse(issued)})
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)
	now := time.Now().UTC()

	var req proofRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, "merge.execute", err)
		return
	}
	t, err := identity.ParseIdentityType(req.Type)
	if err != nil {
		h.writeError(w, r, "merge.execute", err)
		return
	}

	res, err := h.merges.Execute(ctx, merge.Input{
		ActorUserID: p.UserID,
		Type:        t,
		Identifier:  req.Identifier,
		Signature:   req.Signature,
		PublicKey:   req.PublicKey,
		Now:         now,
	})
	h.metrics.AuthEvent("merge", outcome(err))
	if err != nil {
		h.record(ctx, r, audit.Entry{
			Action:    audit.ActionMergeFailed,
			UserID:    p.UserID,
			SessionID: p.SessionID,
			Meta:      map[string]any{"type": string(t), "identifier": req.Identifier, "reason": codeFor(err)},
			At:        now,
		})
		h.writeError(w, r, "merge.execute", err)
		return
	}

	h.record(ctx, r, audit.Entry{
		Action:    audit.ActionMergeSuccess,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		Meta:      map[string]any{"source_user_id": res.SourceUserID, "moved": res.Moved},
		At:        now,
	})
	writeOK(w, map[string]any{
		"source_user_id": res.SourceUserID,
		"target_user_id": res.TargetUserID,
		"moved":          res.Moved,
	})
}
