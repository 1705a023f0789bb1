package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/ops-console/internal/session"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo       Repository
	bcryptCost int
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:       repo,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Authenticate checks credentials and returns the caller's identity without a
// permission set.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*session.Identity, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	creds, err := s.repo.GetCredentials(ctx, strings.ToLower(strings.TrimSpace(dto.Email)))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	identity := creds.Identity
	identity.PageAccess = nil
	return &identity, nil
}

// Hydrate returns the authoritative identity for key. The session key is the
// identity id.
func (s *Service) Hydrate(ctx context.Context, key string) (*session.Identity, error) {
	if key == "" {
		return nil, ErrNoSession
	}
	identity, err := s.repo.GetActiveIdentity(ctx, key)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to hydrate identity: %w", err)
	}
	if identity.PageAccess == nil {
		identity.PageAccess = []string{}
	}
	return identity, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
