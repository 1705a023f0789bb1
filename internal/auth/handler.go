package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/transport"
	"github.com/frahmantamala/ops-console/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*session.Identity, error)
	Hydrate(ctx context.Context, key string) (*session.Identity, error)
}

type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Cache   SessionCache
	Cookie  CookieConfig
}

func NewHandler(svc ServiceAPI, cache SessionCache, cookie CookieConfig) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Cache:       cache,
		Cookie:      cookie,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeInvalidBody))
		return
	}

	identity, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.From(r.Context()).Info("login rejected", "reason", "invalid credentials")
			h.WriteAppError(w, internal.ErrInvalidCredentials)
			return
		}
		h.WriteAppError(w, err)
		return
	}

	sess, err := h.Cache.Set(r.Context(), identity.ID, *identity, dto.Remember)
	if err != nil {
		h.WriteAppError(w, internal.NewInternalError("failed to start session", err))
		return
	}

	http.SetCookie(w, h.sessionCookie(identity.ID, sess.ExpiresAt))
	logger.From(r.Context()).Info("login succeeded", "user_id", identity.ID, "remember", dto.Remember)
	h.WriteJSON(w, http.StatusOK, UserResponse{User: *identity})
}

// Me returns the authoritative identity for the session cookie and refreshes
// the cached session with it.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := h.SessionKeyFromRequest(r, h.Cookie.Name)
	if key == "" {
		h.WriteAppError(w, internal.ErrMissingSession)
		return
	}

	identity, err := h.Service.Hydrate(ctx, key)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			if cerr := h.Cache.Clear(ctx, key); cerr != nil {
				logger.From(ctx).Warn("failed to clear revoked session", "error", cerr)
			}
			h.WriteAppError(w, internal.ErrIdentityNotFound)
			return
		}
		h.WriteAppError(w, err)
		return
	}

	remember := false
	if cached, cerr := h.Cache.Get(ctx, key); cerr == nil {
		remember = cached.Remember
	}
	if _, err := h.Cache.Set(ctx, key, *identity, remember); err != nil {
		logger.From(ctx).Warn("failed to refresh session", "user_id", identity.ID, "error", err)
	}

	h.WriteJSON(w, http.StatusOK, UserResponse{User: *identity})
}

// Logout expires the cookie and drops the cached session. It succeeds whether
// or not a session existed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if key := h.SessionKeyFromRequest(r, h.Cookie.Name); key != "" {
		if err := h.Cache.Clear(r.Context(), key); err != nil {
			logger.From(r.Context()).Warn("failed to clear session on logout", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.WriteJSON(w, http.StatusOK, LogoutResponse{Success: true})
}

func (h *Handler) sessionCookie(value string, expiresAt time.Time) *http.Cookie {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
