package rest

import (
	"log/slog"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/auth"
	"github.com/frahmantamala/ops-console/internal/notify"
	"github.com/frahmantamala/ops-console/internal/transport"
	"github.com/frahmantamala/ops-console/internal/transport/middleware"
	"github.com/frahmantamala/ops-console/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// ConversationPage hosts the conversation views; streaming requires access to it.
const ConversationPage = "/tickets"

type Handlers struct {
	Auth   *auth.Handler
	Gate   *auth.Gate
	Stream *notify.Handler
	Health *HealthHandler
	Rules  *access.Table
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, cfg *internal.Config, logger *slog.Logger) {
	pages := &PageHandler{BaseHandler: transport.NewBaseHandler(logger)}

	// Apply global middleware
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(auth.EdgeGuard(cfg.Session.CookieName, cfg.Session.LoginPath, cfg.Session.ProtectedPrefixes))

	// Serve the OpenAPI document at root
	router.Handle("/openapi.yml", swagger.SpecHandler())
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)
	})

	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/me", h.Auth.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.Gate.RequireSession)
		r.Use(middleware.RequirePageAccess(h.Rules, ConversationPage, logger))
		r.Get("/api/conversations/{id}/stream", h.Stream.ServeStream)
	})

	router.Get(cfg.Session.LoginPath, pages.Login)

	// Page navigations go through the gate
	router.Group(func(r chi.Router) {
		r.Use(h.Gate.Middleware)
		for _, root := range PageRoots {
			r.Get(root, pages.Render)
			r.Get(root+"/*", pages.Render)
		}
	})
}
