package server

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address. Proxy headers take precedence:
// the first X-Forwarded-For entry, then X-Real-IP, then the transport peer
// address, else the literal "unknown". Used by the request logger and as
// the rate limiter's caller key.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
