package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/transport"
	"github.com/go-chi/chi"
)

// Handler serves a Stream as text/event-stream.
type Handler struct {
	*transport.BaseHandler
	stream    *Stream
	heartbeat time.Duration
}

func NewHandler(stream *Stream, heartbeat time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		stream:      stream,
		heartbeat:   heartbeat,
	}
}

type streamPayload struct {
	ConversationID string `json:"conversationId"`
}

// ServeStream streams change signals for the conversation in the {id} URL param
// until the client disconnects.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.WriteAppError(w, internal.NewValidationFieldError("id", "conversation id is required", internal.ErrCodeMissingField))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.WriteAppError(w, internal.ErrStreamingNotAllowed)
		return
	}

	// the server write timeout would cut the stream short
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.Logger.Warn("failed to clear write deadline", "error", err)
	}

	ctx := r.Context()
	sub, err := h.stream.Open(ctx, id)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.Logger.Info("conversation stream opened",
		"conversation_id", id,
		"subscription_id", sub.ID,
		"user_id", internal.UserIDFromContext(ctx))
	defer h.Logger.Info("conversation stream closed", "conversation_id", id, "subscription_id", sub.ID)

	if err := writeEvent(w, <-sub.Ready()); err != nil {
		return
	}
	flusher.Flush()

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.Changed():
			if !ok {
				return
			}
			if err := writeEvent(w, sig); err != nil {
				h.Logger.Debug("stream write failed", "subject", sig.Subject, "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, sig Signal) error {
	data, err := json.Marshal(streamPayload{ConversationID: sig.Subject})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sig.Event, data)
	return err
}
