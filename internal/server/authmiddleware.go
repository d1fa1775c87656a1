package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/apigate/apigate/internal/auth"
)

// claimsKey is the context key for authenticated claims.
type claimsKey struct{}

// internalPrefixes are reserved paths served by the gateway itself; requests
// under them bypass authentication entirely.
var internalPrefixes = []string{"/health", "/metrics"}

// Auth verifies bearer credentials and attaches the decoded claims to the
// request context. The three client failures produce distinct 401 payloads
// (missing header, malformed header, expired or otherwise invalid token);
// anything unexpected during verification becomes a 500 rather than being
// swallowed.
func Auth(authenticator *auth.Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			if isInternalPath(r.URL.Path) {
				logger.Info("skipping auth for internal endpoint",
					slog.String("request_id", requestID),
					slog.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingHeader):
					logger.Warn("missing authorization header",
						slog.String("request_id", requestID),
						slog.String("path", r.URL.Path),
						slog.String("client_ip", ClientIP(r)),
					)
					writeDetail(w, http.StatusUnauthorized, "Authorization header missing")
				default:
					logger.Warn("invalid authorization header format",
						slog.String("request_id", requestID),
						slog.String("path", r.URL.Path),
					)
					writeDetail(w, http.StatusUnauthorized, "Invalid Authorization header format")
				}
				return
			}

			claims, err := authenticator.Verify(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpired) {
					logger.Warn("expired token",
						slog.String("request_id", requestID),
						slog.String("path", r.URL.Path),
					)
					writeDetail(w, http.StatusUnauthorized, "Token expired")
					return
				}
				if !auth.IsVerificationError(err) {
					logger.Error("unexpected error during authentication",
						slog.String("request_id", requestID),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					writeDetail(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
					return
				}
				logger.Warn("invalid token",
					slog.String("request_id", requestID),
					slog.String("path", r.URL.Path),
					slog.String("token_error", err.Error()),
				)
				writeDetail(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
				return
			}

			logger.Info("authentication successful",
				slog.String("request_id", requestID),
				slog.String("user_id", auth.Subject(claims)),
				slog.String("path", r.URL.Path),
			)

			ctx := SetClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isInternalPath(path string) bool {
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SetClaims stores authenticated claims in the context.
func SetClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaims retrieves the authenticated claims from context. Returns nil
// for unauthenticated requests (internal paths).
func GetClaims(ctx context.Context) auth.Claims {
	if claims, ok := ctx.Value(claimsKey{}).(auth.Claims); ok {
		return claims
	}
	return nil
}
