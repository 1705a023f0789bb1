package auth

import (
	"net/http"

	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/transport"
)

// EdgeGuard redirects requests under a protected prefix to loginPath when the
// session cookie is absent. It never touches the session cache or the database.
func EdgeGuard(cookieName, loginPath string, protectedPrefixes []string) func(http.Handler) http.Handler {
	rules := make([]access.Rule, 0, len(protectedPrefixes))
	for _, p := range protectedPrefixes {
		rules = append(rules, access.Rule{Prefix: p, Key: p})
	}
	protected := access.NewTable(rules...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := protected.Resolve(r.URL.Path); ok && transport.SessionKeyFromRequest(r, cookieName) == "" {
				http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
