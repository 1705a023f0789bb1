package rest

import (
	"net/http"

	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/auth"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/transport"
)

// PageRoots are the console's top-level pages.
var PageRoots = []string{
	access.OverviewPath,
	"/dashboard",
	"/tickets",
	"/merchants",
	"/sales",
	"/renewals",
	"/knowledge-base",
	"/settings",
}

// PageEnvelope is what an authorized navigation renders. The UI layer fills
// in the page body.
type PageEnvelope struct {
	Page  string            `json:"page"`
	State auth.State        `json:"state,omitempty"`
	User  *session.Identity `json:"user,omitempty"`
	// Degraded is set when the caller's access list could not be refreshed.
	Degraded bool `json:"degraded,omitempty"`
}

type PageHandler struct {
	*transport.BaseHandler
}

func (h *PageHandler) Render(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	d, _ := auth.DecisionFromContext(r.Context())
	h.WriteJSON(w, http.StatusOK, PageEnvelope{
		Page:     access.Normalize(r.URL.Path),
		State:    d.State,
		User:     user,
		Degraded: d.Degraded,
	})
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, PageEnvelope{Page: access.LoginPath})
}
