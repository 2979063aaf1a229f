package authapi

import (
	"net"
	"net/http"
	"strings"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Handle:         u.Handle,
		DisplayName:    u.DisplayName,
		AvatarURL:      u.AvatarURL,
		Status:         string(u.Status),
		OnboardingStep: u.OnboardingStep,
		CreatedAt:      u.CreatedAt,
	}
}

func toIdentityResponse(i identity.Identity) identityResponse {
	meta := i.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return identityResponse{
		ID:         i.ID,
		Type:       string(i.Type),
		Identifier: i.Identifier,
		IsPrimary:  i.IsPrimary,
		VerifiedAt: i.VerifiedAt,
		Metadata:   meta,
	}
}

func toIdentityResponses(list []identity.Identity) []identityResponse {
	out := make([]identityResponse, 0, len(list))
	for _, i := range list {
		out = append(out, toIdentityResponse(i))
	}
	return out
}

func toChallengeResponse(c challenge.Issued) challengeResponse {
	return challengeResponse{ID: c.ID, Message: c.Message, Nonce: c.Nonce, ExpiresAt: c.ExpiresAt}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func wantsBodyTransport(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), transportBody)
}
