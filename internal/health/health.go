// Package health serves the gateway's liveness and readiness probes.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// probeTimeout bounds each dependency check during readiness.
const probeTimeout = 2 * time.Second

// Dependency statuses reported by the readiness probe.
const (
	StatusOK          = "ok"
	StatusUnhealthy   = "unhealthy"
	StatusUnreachable = "unreachable"
)

// Handler answers liveness and readiness probes. Readiness checks every
// named dependency URL and reports one of ok, unhealthy or unreachable per
// dependency.
type Handler struct {
	dependencies map[string]string
	client       *http.Client
	logger       *slog.Logger
}

// NewHandler creates a Handler probing the given name→URL dependency map.
func NewHandler(dependencies map[string]string, logger *slog.Logger) *Handler {
	return &Handler{
		dependencies: dependencies,
		client:       &http.Client{Timeout: probeTimeout},
		logger:       logger,
	}
}

// Routes mounts the probe endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/live", h.Live)
	r.Get("/ready", h.Ready)
	return r
}

// Live confirms the process is running; it checks no dependencies.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Gateway is alive",
	})
}

// Ready probes each configured dependency's health URL.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string, len(h.dependencies))
	for name, url := range h.dependencies {
		services[name] = h.probe(r, url)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": services,
	})
}

func (h *Handler) probe(r *http.Request, url string) string {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return StatusUnreachable
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("dependency unreachable",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return StatusUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return StatusOK
	}
	return StatusUnhealthy
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
