package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/transport"
	"github.com/frahmantamala/ops-console/pkg/logger"
)

type State string

const (
	StateChecking     State = "checking"
	StateAuthorized   State = "authorized"
	StateRendering    State = "rendering"
	StateUnauthorized State = "unauthorized"
	StateRedirected   State = "redirected"
)

const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonRevoked         = "revoked"
	ReasonForbidden       = "forbidden"
)

// Decision is the outcome of one navigation through the gate.
type Decision struct {
	State    State
	Redirect string
	Session  *session.Session
	Reason   string
	// Degraded is set when hydration failed transiently and the partial cached
	// session was used instead.
	Degraded bool
}

func (d Decision) Authorized() bool {
	return d.State == StateAuthorized || d.State == StateRendering
}

// Gate decides, per navigation, whether the caller may reach a path.
type Gate struct {
	*transport.BaseHandler
	cache      SessionCache
	hydrator   Hydrator
	rules      *access.Table
	cookieName string
	loginPath  string
}

type GateConfig struct {
	CookieName string
	LoginPath  string
}

func NewGate(cache SessionCache, hydrator Hydrator, rules *access.Table, cfg GateConfig, lg *slog.Logger) *Gate {
	if rules == nil {
		rules = access.DefaultTable()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = access.LoginPath
	}
	return &Gate{
		BaseHandler: transport.NewBaseHandler(lg),
		cache:       cache,
		hydrator:    hydrator,
		rules:       rules,
		cookieName:  cfg.CookieName,
		loginPath:   cfg.LoginPath,
	}
}

// Authenticate resolves the session behind key, hydrating it from the identity
// store when the cache misses or only holds a partial identity. It returns
// ErrNoSession for an empty key and ErrIdentityNotFound for a revoked identity.
func (g *Gate) Authenticate(ctx context.Context, key string) (*session.Session, bool, error) {
	if key == "" {
		return nil, false, ErrNoSession
	}

	cached, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			g.Logger.Warn("session cache read failed, treating as miss", "error", err)
		}
		cached = nil
	}

	if cached != nil && cached.IsComplete() {
		return cached, false, nil
	}

	identity, err := g.hydrator.Hydrate(ctx, key)
	if err != nil {
		if cached == nil {
			return nil, false, err
		}
		if errors.Is(err, ErrIdentityNotFound) {
			if cerr := g.cache.Clear(ctx, key); cerr != nil {
				g.Logger.Warn("failed to clear revoked session", "error", cerr)
			}
			return nil, false, ErrIdentityNotFound
		}
		g.Logger.Warn("identity hydration failed, using partial session", "user_id", cached.Identity.ID, "error", err)
		return cached, true, nil
	}

	remember := false
	if cached != nil {
		remember = cached.Remember
	}
	return g.store(ctx, key, *identity, remember), false, nil
}

// Evaluate runs the navigation state machine for path.
func (g *Gate) Evaluate(ctx context.Context, key, path string) Decision {
	sess, degraded, err := g.Authenticate(ctx, key)
	if err != nil {
		reason := ReasonUnauthenticated
		if errors.Is(err, ErrIdentityNotFound) {
			reason = ReasonRevoked
		} else if !errors.Is(err, ErrNoSession) {
			g.Logger.Warn("identity hydration failed", "error", err)
		}
		return Decision{State: StateRedirected, Redirect: g.loginPath, Reason: reason}
	}

	if g.Allows(sess, path) {
		return Decision{State: StateAuthorized, Session: sess, Degraded: degraded}
	}
	return Decision{
		State:    StateRedirected,
		Redirect: access.OverviewPath,
		Session:  sess,
		Reason:   ReasonForbidden,
		Degraded: degraded,
	}
}

// Allows reports whether sess may view path. Super admins skip the rule table.
func (g *Gate) Allows(sess *session.Session, path string) bool {
	if sess.Identity.IsSuperAdmin() {
		return true
	}
	return g.rules.HasAccess(path, sess.Identity.PageAccess)
}

// Middleware guards page navigations. Unauthorized callers are redirected to
// login, forbidden paths to the overview page.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := transport.SessionKeyFromRequest(r, g.cookieName)
		d := g.Evaluate(r.Context(), key, r.URL.Path)
		if !d.Authorized() {
			logger.From(r.Context()).Debug("navigation redirected", "path", r.URL.Path, "reason", d.Reason, "to", d.Redirect)
			http.Redirect(w, r, d.Redirect, http.StatusTemporaryRedirect)
			return
		}

		d.State = StateRendering
		ctx := ContextWithDecision(g.withSession(r.Context(), d.Session), d)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession guards API routes. It answers 401 instead of redirecting and
// does not apply page rules.
func (g *Gate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := transport.SessionKeyFromRequest(r, g.cookieName)
		sess, _, err := g.Authenticate(r.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoSession):
				g.WriteAppError(w, internal.ErrMissingSession)
			case errors.Is(err, ErrIdentityNotFound):
				g.WriteAppError(w, internal.ErrIdentityNotFound)
			default:
				g.WriteAppError(w, err)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(g.withSession(r.Context(), sess)))
	})
}

func (g *Gate) withSession(ctx context.Context, sess *session.Session) context.Context {
	ctx = ContextWithSession(ctx, sess)
	ctx = internal.ContextWithUserID(ctx, sess.Identity.ID)
	return logger.With(ctx, "userID", sess.Identity.ID)
}

// store writes the hydrated identity to the cache. A failed write still yields a
// usable session for this navigation.
func (g *Gate) store(ctx context.Context, key string, identity session.Identity, remember bool) *session.Session {
	sess, err := g.cache.Set(ctx, key, identity, remember)
	if err != nil {
		g.Logger.Warn("failed to write hydrated session", "user_id", identity.ID, "error", err)
		return &session.Session{
			Identity:  identity,
			ExpiresAt: time.Now().Add(session.TTLFor(remember)),
			Remember:  remember,
		}
	}
	return sess
}
