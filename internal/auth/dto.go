package auth

import (
	"strings"

	"github.com/frahmantamala/ops-console/internal/core/common/validation"
	"github.com/frahmantamala/ops-console/internal/session"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Validate checks required fields and returns a validation AppError on failure.
func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", strings.TrimSpace(d.Email)).Required().MaxLength(254).Email()
	// bcrypt ignores input beyond 72 bytes
	v.Field("password", d.Password).Required().MaxLength(72)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// UserResponse wraps an identity the way the console client expects it.
type UserResponse struct {
	User session.Identity `json:"user"`
}

type LogoutResponse struct {
	Success bool `json:"success"`
}
