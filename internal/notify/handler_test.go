package notify_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/ops-console/internal/notify"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		server *httptest.Server
		stream *notify.Stream
		mu     sync.Mutex
		latest time.Time
	)

	BeforeEach(func() {
		latest = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		src := sourceFunc(func(context.Context, string) (time.Time, error) {
			mu.Lock()
			defer mu.Unlock()
			return latest, nil
		})
		stream = notify.NewStream(src, 10*time.Millisecond, quietLogger())
		handler := notify.NewHandler(stream, 20*time.Millisecond, quietLogger())

		router := chi.NewRouter()
		router.Get("/api/conversations/{id}/stream", handler.ServeStream)
		server = httptest.NewServer(router)
	})

	AfterEach(func() {
		server.Close()
	})

	It("should stream ready, heartbeats and coalesced changes", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/conversations/C1/stream", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(ContainSubstring("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))

		lines := make(chan string, 64)
		go func() {
			defer GinkgoRecover()
			defer close(lines)
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		Eventually(lines).Should(Receive(Equal("event: ready")))
		Eventually(lines).Should(Receive(Equal(`data: {"conversationId":"C1"}`)))
		Eventually(lines).Should(Receive(Equal(": ping")))

		Expect(stream.Active()).To(Equal(1))
		mu.Lock()
		latest = latest.Add(time.Minute)
		mu.Unlock()

		Eventually(lines, time.Second).Should(Receive(Equal("event: message")))
		Eventually(lines).Should(Receive(Equal(`data: {"conversationId":"C1"}`)))

		cancel()
		Eventually(func() int { return stream.Active() }).Should(Equal(0))
	})

	It("should reject a blank conversation id", func() {
		resp, err := http.Get(server.URL + "/api/conversations/%20/stream")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(stream.Active()).To(Equal(0))
	})

	It("should refuse a writer that cannot flush", func() {
		handler := notify.NewHandler(stream, 0, quietLogger())
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", "C1")
		req := httptest.NewRequest(http.MethodGet, "/api/conversations/C1/stream", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := &plainWriter{header: http.Header{}}

		handler.ServeStream(rec, req)

		Expect(rec.status).To(Equal(http.StatusInternalServerError))
		Expect(rec.body.String()).To(ContainSubstring("STREAMING_UNSUPPORTED"))
	})
})

// plainWriter is a ResponseWriter without http.Flusher.
type plainWriter struct {
	header http.Header
	status int
	body   strings.Builder
}

func (p *plainWriter) Header() http.Header { return p.header }

func (p *plainWriter) WriteHeader(code int) { p.status = code }

func (p *plainWriter) Write(b []byte) (int, error) { return p.body.Write(b) }
