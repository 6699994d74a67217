package domain

import "time"

// Session represents an authenticated device session with refresh token tracking.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"` // Stored hashed, filter from API responses
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	IPAddress        string    `json:"ip_address,omitempty"`

	// Device information reported by the client
	DeviceType    string `json:"device_type"`            // mobile, tablet, desktop, web
	Platform      string `json:"platform"`               // iOS, Android, Windows, macOS, Linux, Web
	ClientName    string `json:"client_name"`            // CardLink Mobile, CardLink Web
	ClientVersion string `json:"client_version"`         // 1.0.0
	DeviceName    string `json:"device_name,omitempty"`  // user-set, optional
	DeviceModel   string `json:"device_model,omitempty"` // iPhone 15 Pro, Pixel 8 (optional)
}

// IsExpired reports whether the session's refresh token has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
