package server

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Logging wraps the rest of the pipeline with structured start/end log
// entries. Every request produces exactly two entries; when a panic escapes
// the inner handlers the end entry becomes an error entry and the panic is
// re-raised unchanged for the recovery boundary.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := GetRequestID(r.Context())
			clientIP := ClientIP(r)

			logger.Info("incoming request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client_ip", clientIP),
				slog.String("user_agent", r.UserAgent()),
				slog.String("content_length", r.Header.Get("Content-Length")),
			)

			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				duration := durationMillis(time.Since(start))
				if v := recover(); v != nil {
					logger.Error("request failed",
						slog.String("request_id", requestID),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", fmt.Sprint(v)),
						slog.Float64("duration_ms", duration),
						slog.String("client_ip", clientIP),
					)
					panic(v)
				}
				logger.Info("request completed",
					slog.String("request_id", requestID),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", wrapped.status),
					slog.Float64("duration_ms", duration),
					slog.String("client_ip", clientIP),
				)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// durationMillis converts a duration to milliseconds rounded to two decimals.
func durationMillis(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e4) / 100
}

// statusWriter captures the status code written by inner handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher, preserving streaming responses from the backend.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
