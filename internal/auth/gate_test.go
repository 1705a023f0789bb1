package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/ops-console/internal/access"
	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

const testCookie = "console_session"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = ginkgo.Describe("Gate", func() {
	var (
		ctx      context.Context
		mockRepo *mockRepository
		cache    *session.Cache
		gate     *Gate
	)

	partialAgent := func() session.Identity {
		return session.Identity{ID: "u-agent", Name: "Ayu", Email: "agent@example.com", Role: "Agent"}
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		mockRepo = newMockRepository()
		cache = session.NewCache(session.NewMemoryStore(), nil, discardLogger())
		gate = NewGate(cache, NewService(mockRepo), access.DefaultTable(), GateConfig{CookieName: testCookie}, discardLogger())
	})

	ginkgo.Describe("Evaluate", func() {
		ginkgo.Context("with a complete cached session", func() {
			ginkgo.BeforeEach(func() {
				identity := *mockRepo.identities["u-agent"]
				_, err := cache.Set(ctx, "u-agent", identity, false)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			})

			ginkgo.It("should authorize an agent with /sales on /sales/leads", func() {
				d := gate.Evaluate(ctx, "u-agent", "/sales/leads")

				gomega.Expect(d.State).To(gomega.Equal(StateAuthorized))
				gomega.Expect(d.Redirect).To(gomega.BeEmpty())
			})

			ginkgo.It("should redirect the same agent on /tickets to the overview", func() {
				d := gate.Evaluate(ctx, "u-agent", "/tickets")

				gomega.Expect(d.State).To(gomega.Equal(StateRedirected))
				gomega.Expect(d.Redirect).To(gomega.Equal(access.OverviewPath))
				gomega.Expect(d.Reason).To(gomega.Equal(ReasonForbidden))
				gomega.Expect(d.Session).ToNot(gomega.BeNil())
			})

			ginkgo.It("should always authorize the overview", func() {
				d := gate.Evaluate(ctx, "u-agent", "/overview/today")

				gomega.Expect(d.Authorized()).To(gomega.BeTrue())
			})

			ginkgo.It("should validate locally without hydrating", func() {
				gate.Evaluate(ctx, "u-agent", "/sales")
				gate.Evaluate(ctx, "u-agent", "/tickets")

				gomega.Expect(mockRepo.hydrationCount()).To(gomega.Equal(0))
			})
		})

		ginkgo.It("should let a super admin through without a permission set", func() {
			admin := session.Identity{ID: "u-admin", Role: session.RoleSuperAdmin}
			_, err := cache.Set(ctx, "u-admin", admin, false)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			d := gate.Evaluate(ctx, "u-admin", "/settings/users")

			gomega.Expect(d.State).To(gomega.Equal(StateAuthorized))
			gomega.Expect(mockRepo.hydrationCount()).To(gomega.Equal(0))
		})

		ginkgo.Context("with a partial cached session", func() {
			ginkgo.BeforeEach(func() {
				_, err := cache.Set(ctx, "u-agent", partialAgent(), true)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			})

			ginkgo.It("should hydrate, overwrite the cache and keep the remember flag", func() {
				d := gate.Evaluate(ctx, "u-agent", "/sales/leads")

				gomega.Expect(d.State).To(gomega.Equal(StateAuthorized))
				gomega.Expect(d.Degraded).To(gomega.BeFalse())

				cached, err := cache.Get(ctx, "u-agent")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(cached.Identity.PageAccess).To(gomega.Equal([]string{"/sales"}))
				gomega.Expect(cached.Remember).To(gomega.BeTrue())
			})

			ginkgo.It("should fall back to the partial session when hydration fails transiently", func() {
				mockRepo.setError(errors.New("connection reset by peer"))

				d := gate.Evaluate(ctx, "u-agent", "/sales/leads")

				// the partial session carries no pages, so only the overview is reachable
				gomega.Expect(d.Degraded).To(gomega.BeTrue())
				gomega.Expect(d.State).To(gomega.Equal(StateRedirected))
				gomega.Expect(d.Redirect).To(gomega.Equal(access.OverviewPath))

				d = gate.Evaluate(ctx, "u-agent", "/overview")
				gomega.Expect(d.Authorized()).To(gomega.BeTrue())
				gomega.Expect(d.Degraded).To(gomega.BeTrue())
			})

			ginkgo.It("should clear a revoked session and redirect to login", func() {
				mockRepo.revoke("u-agent")

				d := gate.Evaluate(ctx, "u-agent", "/sales")

				gomega.Expect(d.Redirect).To(gomega.Equal(access.LoginPath))
				gomega.Expect(d.Reason).To(gomega.Equal(ReasonRevoked))
				_, err := cache.Get(ctx, "u-agent")
				gomega.Expect(err).To(gomega.MatchError(session.ErrNotFound))
			})
		})

		ginkgo.Context("without a cached session", func() {
			ginkgo.It("should hydrate and write the cache", func() {
				d := gate.Evaluate(ctx, "u-agent", "/sales")

				gomega.Expect(d.State).To(gomega.Equal(StateAuthorized))
				cached, err := cache.Get(ctx, "u-agent")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(cached.Remember).To(gomega.BeFalse())
			})

			ginkgo.It("should redirect to login when hydration fails", func() {
				mockRepo.setError(errors.New("connection refused"))

				d := gate.Evaluate(ctx, "u-agent", "/sales")

				gomega.Expect(d.State).To(gomega.Equal(StateRedirected))
				gomega.Expect(d.Redirect).To(gomega.Equal(access.LoginPath))
			})

			ginkgo.It("should redirect to login for an unknown identity", func() {
				d := gate.Evaluate(ctx, "u-ghost", "/sales")

				gomega.Expect(d.Redirect).To(gomega.Equal(access.LoginPath))
			})

			ginkgo.It("should redirect an empty key to login without hydrating", func() {
				d := gate.Evaluate(ctx, "", "/overview")

				gomega.Expect(d.Redirect).To(gomega.Equal(access.LoginPath))
				gomega.Expect(d.Reason).To(gomega.Equal(ReasonUnauthenticated))
				gomega.Expect(mockRepo.hydrationCount()).To(gomega.Equal(0))
			})
		})
	})

	ginkgo.Describe("Middleware", func() {
		var (
			reached  *session.Identity
			decision Decision
			handler  http.Handler
		)

		ginkgo.BeforeEach(func() {
			reached = nil
			decision = Decision{}
			handler = gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached, _ = UserFromContext(r.Context())
				decision, _ = DecisionFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
		})

		ginkgo.It("should render an authorized page with the caller in context", func() {
			req := httptest.NewRequest(http.MethodGet, "/sales/leads", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "u-agent"})
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(reached).ToNot(gomega.BeNil())
			gomega.Expect(reached.ID).To(gomega.Equal("u-agent"))
			gomega.Expect(decision.State).To(gomega.Equal(StateRendering))
			gomega.Expect(decision.Authorized()).To(gomega.BeTrue())
			gomega.Expect(decision.Degraded).To(gomega.BeFalse())
		})

		ginkgo.It("should mark the rendered page degraded when hydration fails transiently", func() {
			_, err := cache.Set(ctx, "u-agent", partialAgent(), false)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			mockRepo.setError(errors.New("connection reset by peer"))

			req := httptest.NewRequest(http.MethodGet, "/overview", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "u-agent"})
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decision.State).To(gomega.Equal(StateRendering))
			gomega.Expect(decision.Degraded).To(gomega.BeTrue())
		})

		ginkgo.It("should redirect a forbidden page to the overview", func() {
			req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "u-agent"})
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusTemporaryRedirect))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal("/overview"))
			gomega.Expect(reached).To(gomega.BeNil())
		})

		ginkgo.It("should redirect a caller without a cookie to login", func() {
			req := httptest.NewRequest(http.MethodGet, "/sales", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusTemporaryRedirect))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal("/login"))
		})
	})

	ginkgo.Describe("RequireSession", func() {
		var handler http.Handler

		ginkgo.BeforeEach(func() {
			handler = gate.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
		})

		ginkgo.It("should pass an authenticated caller regardless of page rules", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/stream", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "u-agent"})
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
		})

		ginkgo.It("should answer 401 without a cookie", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/stream", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("MISSING_SESSION"))
		})

		ginkgo.It("should answer 401 for a revoked identity", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/stream", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "u-ghost"})
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("IDENTITY_NOT_FOUND"))
		})
	})
})

var _ = ginkgo.Describe("EdgeGuard", func() {
	var handler http.Handler

	ginkgo.BeforeEach(func() {
		guard := EdgeGuard(testCookie, "/login", []string{"/overview", "/dashboard", "/sales"})
		handler = guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	})

	ginkgo.It("should redirect a cookie-less request under a protected prefix to login", func() {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/x", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusTemporaryRedirect))
		gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal("/login"))
	})

	ginkgo.It("should only check that the cookie exists", func() {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/x", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: "anything"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
	})

	ginkgo.It("should leave unprotected paths alone", func() {
		for _, path := range []string{"/login", "/dashboards", "/api/auth/me"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK), path)
		}
	})
})
