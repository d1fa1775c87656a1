package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/apigate/apigate/internal/auth"
	"github.com/apigate/apigate/internal/health"
	"github.com/apigate/apigate/internal/metrics"
	"github.com/apigate/apigate/internal/proxy"
	"github.com/apigate/apigate/internal/ratelimit"
)

// Server is the gateway's single ingress: the middleware pipeline, the
// internal health/metrics endpoints, and the proxy catch-all.
type Server struct {
	Router *chi.Mux
	Port   int

	logger *slog.Logger
	http   *http.Server
}

// New assembles the request pipeline. Stages run in declaration order on
// the way in and unwind in reverse on the way out: RequestID first so every
// later stage and the recovery boundary see the correlation id, then the
// failure boundary, the request logger, metrics, rate limiting and
// authentication. The proxy handler is the terminal stage for /api paths.
func New(port int, logger *slog.Logger, limiter *ratelimit.Limiter, authenticator *auth.Authenticator, forwarder *proxy.Forwarder, healthHandler *health.Handler, m *metrics.Metrics) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	r.Use(m.Middleware)
	r.Use(RateLimit(limiter, logger))
	r.Use(Auth(authenticator, logger))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "api-gateway")
	})

	r.Mount("/health", healthHandler.Routes())
	r.Mount("/metrics", m.Routes())

	proxyHandler := proxy.NewHandler(forwarder, logger)
	r.Handle("/api/*", proxyHandler)

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
