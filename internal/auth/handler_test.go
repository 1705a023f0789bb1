package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/ops-console/internal/session"
	"github.com/frahmantamala/ops-console/internal/storage"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var _ = ginkgo.Describe("Handler", func() {
	var (
		ctx      context.Context
		mockRepo *mockRepository
		cache    *session.Cache
		handler  *Handler
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		mockRepo = newMockRepository()
		cache = session.NewCache(session.NewMemoryStore(), nil, discardLogger())
		handler = NewHandler(NewService(mockRepo), cache, CookieConfig{Name: testCookie})
	})

	ginkgo.Describe("Login", func() {
		login := func(body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.Login(rec, req)
			return rec
		}

		ginkgo.It("should set the session cookie and write a partial session", func() {
			// When
			rec := login(`{"email":"agent@example.com","password":"correct_password","remember":true}`)

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			cookie := findCookie(rec, testCookie)
			gomega.Expect(cookie).ToNot(gomega.BeNil())
			gomega.Expect(cookie.Value).To(gomega.Equal("u-agent"))
			gomega.Expect(cookie.HttpOnly).To(gomega.BeTrue())
			gomega.Expect(cookie.Path).To(gomega.Equal("/"))
			gomega.Expect(cookie.MaxAge).To(gomega.BeNumerically("~", int((30 * 24 * time.Hour).Seconds()), 5))

			sess, err := cache.Get(ctx, "u-agent")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sess.Remember).To(gomega.BeTrue())
			gomega.Expect(sess.IsComplete()).To(gomega.BeFalse())

			var resp map[string]map[string]interface{}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp["user"]["email"]).To(gomega.Equal("agent@example.com"))
		})

		ginkgo.It("should reject bad credentials with 401", func() {
			rec := login(`{"email":"agent@example.com","password":"nope"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(findCookie(rec, testCookie)).To(gomega.BeNil())
		})

		ginkgo.It("should reject a missing field with 400", func() {
			rec := login(`{"email":"agent@example.com"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("password is required"))
		})

		ginkgo.It("should reject a malformed body with 400", func() {
			rec := login(`{`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("INVALID_BODY"))
		})
	})

	ginkgo.Describe("Me", func() {
		me := func(cookie string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: cookie})
			}
			rec := httptest.NewRecorder()
			handler.Me(rec, req)
			return rec
		}

		ginkgo.It("should return the hydrated identity", func() {
			rec := me("u-agent")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp UserResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.User.PageAccess).To(gomega.Equal([]string{"/sales"}))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"avatarUrl":null`))
		})

		ginkgo.It("should refresh the cached session and keep its remember flag", func() {
			partial := session.Identity{ID: "u-agent", Role: "Agent"}
			_, err := cache.Set(ctx, "u-agent", partial, true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			me("u-agent")

			sess, err := cache.Get(ctx, "u-agent")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(sess.IsComplete()).To(gomega.BeTrue())
			gomega.Expect(sess.Remember).To(gomega.BeTrue())
		})

		ginkgo.It("should answer 401 without a cookie", func() {
			gomega.Expect(me("").Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should answer 401 and drop the session for an inactive identity", func() {
			_, err := cache.Set(ctx, "u-agent", session.Identity{ID: "u-agent"}, false)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			mockRepo.revoke("u-agent")

			rec := me("u-agent")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			_, err = cache.Get(ctx, "u-agent")
			gomega.Expect(err).To(gomega.MatchError(session.ErrNotFound))
		})

		ginkgo.It("should answer 503 when the store is unreachable", func() {
			mockRepo.setError(&storage.StorageError{Kind: storage.KindConnectionRefused, Err: errors.New("dial tcp: connection refused")})

			rec := me("u-agent")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusServiceUnavailable))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("STORAGE_UNAVAILABLE"))
		})

		ginkgo.It("should answer 500 for a permanent store failure", func() {
			mockRepo.setError(&storage.StorageError{Kind: storage.KindFatal, Err: errors.New("syntax error")})

			rec := me("u-agent")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
		})
	})

	ginkgo.Describe("Logout", func() {
		logout := func(cookie string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
			if cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: cookie})
			}
			rec := httptest.NewRecorder()
			handler.Logout(rec, req)
			return rec
		}

		ginkgo.It("should expire the cookie and clear the session", func() {
			_, err := cache.Set(ctx, "u-agent", *mockRepo.identities["u-agent"], false)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			rec := logout("u-agent")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"success":true`))
			cookie := findCookie(rec, testCookie)
			gomega.Expect(cookie).ToNot(gomega.BeNil())
			gomega.Expect(cookie.MaxAge).To(gomega.BeNumerically("<", 0))
			gomega.Expect(cookie.Path).To(gomega.Equal("/"))

			_, err = cache.Get(ctx, "u-agent")
			gomega.Expect(err).To(gomega.MatchError(session.ErrNotFound))
		})

		ginkgo.It("should be idempotent", func() {
			gomega.Expect(logout("").Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(logout("u-agent").Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(logout("u-agent").Code).To(gomega.Equal(http.StatusOK))
		})
	})
})
