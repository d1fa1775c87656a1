package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is the private type for request-scoped context keys.
type contextKey string

// requestIDKey is the context key for request IDs.
const requestIDKey contextKey = "request_id"

// HeaderRequestID is the correlation header echoed on every response.
const HeaderRequestID = "X-Request-ID"

// RequestID attaches a correlation id to each request. An inbound
// X-Request-ID header is reused; otherwise a short unique id is generated.
// The id is stored in the context and set on the response header before any
// other middleware runs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context. Returns "unknown"
// when no id is set, matching what log entries carry outside the pipeline.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
