package authapi

import (
	"errors"
	"net/http"

	"userbase/cmd/identity"
)

var (
	errMissingCredentials = identity.NewCoded(identity.ErrUnauthenticated, "missing_credentials")
	errInvalidJSON        = identity.NewCoded(identity.ErrInvalidInput, "invalid_json")
	errRateLimited        = errors.New("rate_limited")
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrNotActive):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, identity.ErrCapacity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns the stable wire code for err.
func codeFor(err error) string {
	if errors.Is(err, errRateLimited) {
		return errRateLimited.Error()
	}
	return identity.Code(err)
}

// writeError writes the JSON failure body. Details are withheld in production.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(event+".fail", "err", err, "path", r.URL.Path)
	} else {
		h.log.Debug(event+".reject", "err", err, "status", status)
	}

	resp := errorResponse{Error: codeFor(err)}
	if !h.cfg.Production() {
		resp.Details = err.Error()
	}
	if ce, ok := identity.AsConflict(err); ok {
		resp.OwnerUserID = ce.OwnerUserID
	}
	writeJSON(w, status, resp)
}
