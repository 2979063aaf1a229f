package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"userbase/cmd/internal/audit"
)

// record writes an audit entry with the request's client IP and user agent.
// Audit failures are logged, never returned.
func (h *Handler) record(ctx context.Context, r *http.Request, e audit.Entry) {
	if h.audit == nil {
		return
	}
	e.IP = clientIP(r, h.cfg.TrustProxy)
	e.UserAgent = strings.TrimSpace(r.UserAgent())
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := h.audit.Record(ctx, e); err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", e.Action)
	}
}
