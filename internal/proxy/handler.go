package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler is the terminal pipeline stage: it forwards the incoming request
// to the backend and writes the relayed response.
type Handler struct {
	forwarder *Forwarder
	logger    *slog.Logger
}

// NewHandler wraps a Forwarder as an http.Handler.
func NewHandler(forwarder *Forwarder, logger *slog.Logger) *Handler {
	return &Handler{forwarder: forwarder, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.forwarder.Forward(r.Context(), r.Method, forwardPath(r), r.URL.RawQuery, r.Header, r.Body)
	if err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			h.logger.ErrorContext(r.Context(), "backend unreachable",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", unavailable.Err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"detail": "Backend service unavailable: " + unavailable.Err.Error(),
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "proxy request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "Unexpected error: " + err.Error(),
		})
		return
	}

	// JSON upstream bodies are decoded and re-encoded so the gateway always
	// emits well-formed JSON; everything else is relayed as text. The
	// backend's status code is preserved either way, including errors.
	if strings.HasPrefix(resp.ContentType(), "application/json") {
		var decoded any
		if err := json.Unmarshal(resp.Body, &decoded); err != nil {
			h.logger.WarnContext(r.Context(), "backend sent malformed json",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"detail": "Backend service unavailable: malformed JSON response",
			})
			return
		}
		writeJSON(w, resp.Status, decoded)
		return
	}

	contentType := resp.ContentType()
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// forwardPath is the path sent upstream. When the handler is mounted on a
// chi wildcard route (/api/*) only the wildcard remainder is forwarded, so
// the gateway's own mount prefix never reaches the backend.
func forwardPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); strings.HasSuffix(pattern, "/*") {
			return "/" + rctx.URLParam("*")
		}
	}
	return r.URL.Path
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
