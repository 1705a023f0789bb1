package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/auth"
	"github.com/frahmantamala/ops-console/internal/transport"
)

// RequirePageAccess guards an API route behind the page that hosts it. The
// caller must already be authenticated by auth.Gate.RequireSession.
func RequirePageAccess(rules *access.Table, page string, logger *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok || user == nil {
				base.WriteAppError(w, internal.ErrMissingSession)
				return
			}

			if !user.IsSuperAdmin() && !rules.HasAccess(page, user.PageAccess) {
				base.Logger.Warn("access denied: identity lacks page access",
					"user_id", user.ID,
					"page", page,
					"page_access", user.PageAccess)
				base.WriteAppError(w, internal.NewForbiddenError("Forbidden: insufficient page access", internal.ErrCodeForbiddenPath))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
