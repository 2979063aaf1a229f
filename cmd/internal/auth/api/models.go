package authapi

import "time"

// Transport values for where a new refresh token is delivered.
const (
	transportCookie = "cookie"
	transportBody   = "body"
)

type identityRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type bootstrapRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`

	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`

	DeviceID  string `json:"device_id"`
	Transport string `json:"transport"`
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

type magicLinkVerifyRequest struct {
	Token string `json:"token"`

	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`

	DeviceID  string `json:"device_id"`
	Transport string `json:"transport"`
}

type exchangeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type linkRequest struct {
	Type       string         `json:"type"`
	Identifier string         `json:"identifier"`
	Signature  string         `json:"signature"`
	PublicKey  string         `json:"public_key"`
	Metadata   map[string]any `json:"metadata"`
}

type proofRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
}

type userResponse struct {
	ID             string    `json:"id"`
	Handle         *string   `json:"handle"`
	DisplayName    *string   `json:"display_name"`
	AvatarURL      *string   `json:"avatar_url"`
	Status         string    `json:"status"`
	OnboardingStep int       `json:"onboarding_step"`
	CreatedAt      time.Time `json:"created_at"`
}

type identityResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Identifier string         `json:"identifier"`
	IsPrimary  bool           `json:"is_primary"`
	VerifiedAt time.Time      `json:"verified_at"`
	Metadata   map[string]any `json:"metadata"`
}

type sessionResponse struct {
	SessionID        string     `json:"session_id"`
	AccessToken      string     `json:"access_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

type challengeResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}
