package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/ops-console/internal"
	"github.com/frahmantamala/ops-console/internal/storage"
	"github.com/frahmantamala/ops-console/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteAppError maps err onto the AppError taxonomy and writes it. Storage faults
// that survived the executor's retry become 503 so clients can tell them apart
// from permanent failures.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		if storage.IsUnavailable(err) {
			appErr = internal.NewUnavailableError("service temporarily unavailable", err)
		} else {
			appErr = internal.NewInternalError("internal server error", err)
		}
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "code", appErr.Code, "status", appErr.StatusCode, "error", appErr.Error())
	} else {
		h.Logger.Debug("request rejected", "code", appErr.Code, "status", appErr.StatusCode)
	}

	w.Header().Set("Content-Type", "application/json")
	if appErr.Type == internal.ErrorTypeUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	status, body := appErr.ToHTTPResponse()
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("failed to encode error response", "error", err)
	}
}

// SessionKeyFromRequest returns the opaque session key carried in the named cookie.
func (h *BaseHandler) SessionKeyFromRequest(r *http.Request, cookieName string) string {
	return SessionKeyFromRequest(r, cookieName)
}

func SessionKeyFromRequest(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
