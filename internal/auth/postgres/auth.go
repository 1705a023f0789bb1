package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/auth"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/storage"
)

type Repository struct {
	exec *storage.Executor
}

func NewRepository(exec *storage.Executor) *Repository {
	return &Repository{
		exec: exec,
	}
}

type identityRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	Department   sql.NullString `db:"department"`
	Role         string         `db:"role"`
	AvatarURL    sql.NullString `db:"avatar_url"`
	PageAccess   sql.NullString `db:"page_access"`
	PasswordHash string         `db:"password_hash"`
}

func (r identityRow) identity() session.Identity {
	id := session.Identity{
		ID:         r.ID,
		Name:       r.Name,
		Email:      r.Email,
		Department: r.Department.String,
		Role:       r.Role,
	}
	if r.AvatarURL.Valid && r.AvatarURL.String != "" {
		avatar := r.AvatarURL.String
		id.AvatarURL = &avatar
	}
	return id
}

func (r *Repository) GetCredentials(ctx context.Context, email string) (*auth.Credentials, error) {
	var row identityRow
	query := `SELECT id, name, email, department, role, avatar_url, password_hash
	          FROM users WHERE email = ? AND is_active = true`

	if err := r.exec.Get(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}

	return &auth.Credentials{
		Identity:     row.identity(),
		PasswordHash: row.PasswordHash,
	}, nil
}

func (r *Repository) GetActiveIdentity(ctx context.Context, id string) (*session.Identity, error) {
	var row identityRow
	query := `SELECT id, name, email, department, role, avatar_url, page_access
	          FROM users WHERE id = ? AND is_active = true`

	if err := r.exec.Get(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}

	identity := row.identity()
	if row.PageAccess.Valid {
		identity.PageAccess = access.NormalizePermissions(row.PageAccess.String)
	} else {
		identity.PageAccess = []string{}
	}
	return &identity, nil
}
