package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/apigate/apigate/internal/ratelimit"
)

// RateLimit gates requests on the per-caller fixed-window limiter, keyed by
// the resolved client IP. Denials are protocol-level 429 responses, not
// errors; the retry hint is sent both in the body and as a Retry-After
// header. Every decision leaves a structured log line.
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			clientIP := ClientIP(r)

			decision := limiter.Check(clientIP)

			if decision.WindowReset {
				logger.Info("rate limit window reset",
					slog.String("request_id", requestID),
					slog.String("client_ip", clientIP),
				)
			}

			logger.Info("rate limit check",
				slog.String("request_id", requestID),
				slog.String("client_ip", clientIP),
				slog.Int("current_count", decision.Count),
				slog.Int("limit", limiter.Limit()),
				slog.String("path", r.URL.Path),
			)

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Seconds())
				logger.Warn("rate limit exceeded",
					slog.String("request_id", requestID),
					slog.String("client_ip", clientIP),
					slog.Int("current_count", decision.Count),
					slog.Int("limit", limiter.Limit()),
					slog.Int("reset_in", retryAfter),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeDetail(w, http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded. Try again in %ds.", retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
