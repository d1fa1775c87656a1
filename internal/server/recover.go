package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Recover is the outermost failure boundary. Anything the inner stages do
// not translate into a terminal response ends up here, is logged with the
// request id, and becomes a 500. A request never crashes the process.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("unhandled error in pipeline",
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", fmt.Sprint(v)),
					)
					writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", v))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// writeDetail writes the gateway's standard JSON error envelope.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
