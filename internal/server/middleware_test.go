package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apigate/apigate/internal/auth"
	"github.com/apigate/apigate/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureLogger returns a logger writing JSON entries to the buffer.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

// logEntries parses every JSON log line in the buffer.
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("malformed log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// =============================================================================
// RequestID
// =============================================================================

func TestRequestID_Generates(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	RequestID(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || seen == "unknown" {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if len(seen) != 8 {
		t.Errorf("generated id %q should be 8 chars", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header %q, want the context id %q", got, seen)
	}
}

func TestRequestID_ReusesInbound(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "client-supplied-id")
	rec := httptest.NewRecorder()
	RequestID(handler).ServeHTTP(rec, req)

	if seen != "client-supplied-id" {
		t.Errorf("context id = %q, want the inbound header value", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != "client-supplied-id" {
		t.Errorf("response header = %q, want the inbound header value", got)
	}
}

func TestGetRequestID_Unset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "unknown" {
		t.Errorf("GetRequestID outside pipeline = %q, want unknown", got)
	}
}

// =============================================================================
// ClientIP
// =============================================================================

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "x-forwarded-for first entry wins",
			remoteAddr: "10.0.0.9:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.2"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.9:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
		},
		{
			name:       "transport peer fallback",
			remoteAddr: "10.0.0.9:1234",
			want:       "10.0.0.9",
		},
		{
			name:       "no address at all",
			remoteAddr: "",
			want:       "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logging
// =============================================================================

func TestLogging_TwoEntriesPerRequest(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/items", nil)
	req.Header.Set(HeaderRequestID, "req-1234")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logEntries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}

	start, end := entries[0], entries[1]
	if start["msg"] != "incoming request" {
		t.Errorf("first entry msg = %v", start["msg"])
	}
	if end["msg"] != "request completed" {
		t.Errorf("second entry msg = %v", end["msg"])
	}
	for _, entry := range entries {
		if entry["request_id"] != "req-1234" {
			t.Errorf("entry %v missing request id", entry["msg"])
		}
	}
	if end["status"] != float64(http.StatusCreated) {
		t.Errorf("end entry status = %v, want 201", end["status"])
	}
	if _, ok := end["duration_ms"].(float64); !ok {
		t.Errorf("end entry lacks numeric duration_ms: %v", end["duration_ms"])
	}
}

func TestLogging_PanicBecomesErrorEntryAndPropagates(t *testing.T) {
	logger, buf := captureLogger()
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic must propagate unchanged past the logging stage")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()

	entries := logEntries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want start + error", len(entries))
	}
	end := entries[1]
	if end["msg"] != "request failed" {
		t.Errorf("end entry msg = %v, want request failed", end["msg"])
	}
	if end["level"] != "ERROR" {
		t.Errorf("end entry level = %v, want ERROR", end["level"])
	}
	if !strings.Contains(end["error"].(string), "boom") {
		t.Errorf("end entry error = %v", end["error"])
	}
}

// =============================================================================
// Recover
// =============================================================================

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected condition")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("500 body is not JSON: %v", err)
	}
	if !strings.Contains(body["detail"], "Unexpected error") {
		t.Errorf("detail = %q", body["detail"])
	}
}

// =============================================================================
// RateLimit
// =============================================================================

func TestRateLimit_DeniesOverLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewStore(), 2, time.Minute)
	handler := RateLimit(limiter, discardLogger())(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 should carry a Retry-After header")
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not JSON: %v", err)
	}
	if !strings.Contains(body["detail"], "Rate limit exceeded. Try again in") {
		t.Errorf("detail = %q, want human-readable retry hint", body["detail"])
	}
}

func TestRateLimit_KeyedByClientIP(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewStore(), 1, time.Minute)
	handler := RateLimit(limiter, discardLogger())(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("first request from caller = %d", code)
	}
	if code := send("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("second request from same caller = %d, want 429", code)
	}
	if code := send("203.0.113.8"); code != http.StatusOK {
		t.Errorf("different caller = %d, want 200", code)
	}
}

// =============================================================================
// Auth
// =============================================================================

func authHandler(t *testing.T, a *auth.Authenticator) http.Handler {
	t.Helper()
	return Auth(a, discardLogger())(okHandler())
}

func requestWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not the JSON error envelope: %v", err)
	}
	return body["detail"]
}

func TestAuth_MissingHeader(t *testing.T) {
	handler := authHandler(t, auth.New("secret"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithAuth(""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := detailOf(t, rec); got != "Authorization header missing" {
		t.Errorf("detail = %q", got)
	}
}

func TestAuth_MalformedHeaderDistinctFromMissing(t *testing.T) {
	handler := authHandler(t, auth.New("secret"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithAuth("Token abc"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := detailOf(t, rec); got != "Invalid Authorization header format" {
		t.Errorf("detail = %q, want the malformed-header reason", got)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	issuer := auth.New("secret", auth.WithClock(func() time.Time { return issued }))
	token, err := issuer.Issue(map[string]any{"sub": "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := authHandler(t, auth.New("secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithAuth("Bearer "+token))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := detailOf(t, rec); got != "Token expired" {
		t.Errorf("detail = %q, want the expired reason", got)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := authHandler(t, auth.New("secret"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithAuth("Bearer not.a.token"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := detailOf(t, rec); !strings.HasPrefix(got, "Invalid token:") {
		t.Errorf("detail = %q, want the invalid-token reason", got)
	}
}

func TestAuth_ValidTokenAttachesClaims(t *testing.T) {
	a := auth.New("secret")
	token, err := a.Issue(map[string]any{"sub": "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var claims auth.Claims
	handler := Auth(a, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithAuth("Bearer "+token))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if claims == nil || auth.Subject(claims) != "alice" {
		t.Errorf("claims = %v, want sub=alice in request context", claims)
	}
}

func TestAuth_InternalPathsBypass(t *testing.T) {
	handler := Auth(auth.New("secret"), discardLogger())(okHandler())

	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/metrics/summary"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s without Authorization = %d, want 200", path, rec.Code)
		}
	}
}
