package domain

import "time"

// Role represents the user's permission level in the system.
type Role string

const (
	// RoleAdmin grants access to event-wide data such as connection tallies.
	RoleAdmin Role = "admin"
	// RoleAttendee grants standard attendee access.
	RoleAttendee Role = "attendee"
)

// User is an authenticated attendee account. The user's ID doubles as the
// card ID encoded into their shareable code, so scanning a code resolves
// directly to a user.
type User struct {
	Syncable
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"` // Stored hashed, filter from API responses
	IsRoot       bool      `json:"is_root"`
	Role         Role      `json:"role"`
	DisplayName  string    `json:"display_name"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	LastLoginAt  time.Time `json:"last_login_at"`
}

// IsAdmin returns true if the user has administrative privileges.
// Root users are automatically admins, regardless of their role field.
func (u *User) IsAdmin() bool {
	return u.IsRoot || u.Role == RoleAdmin
}

// SeedCard builds the starting own card for a user: identity fields from the
// account, everything else left for the directory merge or manual edit.
func (u *User) SeedCard() Card {
	return Card{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}
