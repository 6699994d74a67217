package auth

import "time"

// AccessClaims are the claims carried in an access token.
type AccessClaims struct {
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	IssuedAt   time.Time `json:"iat"`
	NotBefore  time.Time `json:"nbf"`
	TokenID    string    `json:"jti"`

	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// DeviceInfo describes the client device establishing a session.
type DeviceInfo struct {
	DeviceType    string `json:"device_type"`
	Platform      string `json:"platform"`
	ClientName    string `json:"client_name"`
	ClientVersion string `json:"client_version"`
	DeviceName    string `json:"device_name,omitempty"`
	DeviceModel   string `json:"device_model,omitempty"`
}
