package authapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"userbase/cmd/internal/audit"
)

// throttle counts audit rows of action from the request's IP inside window and
// rejects once max is reached. max == 0 disables the check.
func (h *Handler) throttle(ctx context.Context, r *http.Request, action string, max int, window time.Duration, now time.Time) (time.Duration, error) {
	if h.audit == nil || max <= 0 {
		return 0, nil
	}
	ip := clientIP(r, h.cfg.TrustProxy)
	if ip == nil {
		return 0, nil
	}
	n, err := h.audit.CountByIP(ctx, action, ip, now.Add(-window))
	if err != nil {
		return 0, err
	}
	if n < max {
		return 0, nil
	}
	h.record(ctx, r, audit.Entry{
		Action: audit.ActionRateLimited,
		Meta:   map[string]any{"counted": action, "retry_after_s": int64(window.Seconds())},
		At:     now,
	})
	return window, errRateLimited
}

func setRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
}
