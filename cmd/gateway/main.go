package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/apigate/apigate/internal/auth"
	"github.com/apigate/apigate/internal/config"
	"github.com/apigate/apigate/internal/health"
	"github.com/apigate/apigate/internal/logging"
	"github.com/apigate/apigate/internal/metrics"
	"github.com/apigate/apigate/internal/proxy"
	"github.com/apigate/apigate/internal/ratelimit"
	"github.com/apigate/apigate/internal/server"
	"github.com/apigate/apigate/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("api-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	limiter := ratelimit.New(ratelimit.NewStore(), cfg.RateLimit.Limit, cfg.RateLimit.Window)
	authenticator := auth.New(cfg.Auth.Secret)

	forwarder, err := proxy.New(cfg.Proxy.BackendURL, cfg.Proxy.Timeout)
	if err != nil {
		log.Fatalf("Failed to configure proxy: %v", err)
	}

	healthHandler := health.NewHandler(cfg.Health.Dependencies, logger)
	m := metrics.New()

	srv := server.New(cfg.Server.Port, logger, limiter, authenticator, forwarder, healthHandler, m)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("backend", cfg.Proxy.BackendURL),
		slog.Int("rate_limit", cfg.RateLimit.Limit),
		slog.Duration("rate_window", cfg.RateLimit.Window),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigCh:
		logger.Info("shutdown signal received, stopping gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("gateway shutdown complete")
	}
}
