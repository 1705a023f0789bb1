package auth

import (
	"context"
	"errors"

	"github.com/frahmantamala/ops-console/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityNotFound means no active identity exists for the key; the
	// session has been revoked server-side.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNoSession        = errors.New("no session")
)

// Credentials is the login view of an identity. Identity carries no permission
// set; it is hydrated on first navigation.
type Credentials struct {
	Identity     session.Identity
	PasswordHash string
}

// Repository loads identities from the identity store. Both lookups return
// ErrIdentityNotFound for unknown or deactivated identities.
type Repository interface {
	GetCredentials(ctx context.Context, email string) (*Credentials, error)
	GetActiveIdentity(ctx context.Context, id string) (*session.Identity, error)
}

// SessionCache is satisfied by *session.Cache.
type SessionCache interface {
	Get(ctx context.Context, key string) (*session.Session, error)
	Set(ctx context.Context, key string, identity session.Identity, remember bool) (*session.Session, error)
	Clear(ctx context.Context, key string) error
}

// Hydrator fetches the authoritative identity for a session key.
type Hydrator interface {
	Hydrate(ctx context.Context, key string) (*session.Identity, error)
}

type ctxKey string

const (
	contextSessionKey  ctxKey = "session"
	contextDecisionKey ctxKey = "decision"
)

func ContextWithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, contextSessionKey, sess)
}

func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(contextSessionKey).(*session.Session)
	return sess, ok && sess != nil
}

// UserFromContext returns the identity of the authorized caller.
func UserFromContext(ctx context.Context) (*session.Identity, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return &sess.Identity, true
}

func ContextWithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, contextDecisionKey, d)
}

// DecisionFromContext returns the gate decision for the page being rendered.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(contextDecisionKey).(Decision)
	return d, ok
}
