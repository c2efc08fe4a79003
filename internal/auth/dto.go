package auth

import "time"

// StorageKey is the kv key holding the auth record.
const StorageKey = "@auth_data"

// User is the profile returned by the identity provider's userinfo endpoint.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email,omitempty"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

// StoredAuthData is the persisted session.
type StoredAuthData struct {
	User           User      `json:"user"`
	AccessToken    string    `json:"accessToken"`
	RefreshToken   string    `json:"refreshToken"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// SessionView is the public projection of the session (no tokens).
type SessionView struct {
	User           User      `json:"user"`
	ExpirationDate time.Time `json:"expiration_date"`
	NearExpiry     bool      `json:"near_expiry"`
}

// SignInRequest carries the tokens produced by the external consent flow.
type SignInRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}
