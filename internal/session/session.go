package session

import (
	"errors"
	"time"
)

const (
	// RoleSuperAdmin bypasses page access checks entirely.
	RoleSuperAdmin = "Super Admin"

	DefaultTTL  = 7 * 24 * time.Hour
	RememberTTL = 30 * 24 * time.Hour
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrInvalidKey = errors.New("session key is required")
)

// Identity is the caller as loaded from the identity store. A nil PageAccess means
// the permission set has not been hydrated yet.
type Identity struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Department string   `json:"department"`
	Role       string   `json:"role"`
	AvatarURL  *string  `json:"avatarUrl"`
	PageAccess []string `json:"pageAccess"`
}

func (i *Identity) IsSuperAdmin() bool {
	return i.Role == RoleSuperAdmin
}

// HasPermissionSet reports whether the identity carries a hydrated permission set.
func (i *Identity) HasPermissionSet() bool {
	return i.PageAccess != nil
}

type Session struct {
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
	Remember  bool      `json:"remember"`
}

// Valid reports whether now is strictly before the expiry instant.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// IsComplete reports whether the session can be authorized without a server lookup.
func (s *Session) IsComplete() bool {
	return s.Identity.IsSuperAdmin() || s.Identity.HasPermissionSet()
}

// TTLFor returns the lifetime of a session written with the given remember flag.
func TTLFor(remember bool) time.Duration {
	if remember {
		return RememberTTL
	}
	return DefaultTTL
}
