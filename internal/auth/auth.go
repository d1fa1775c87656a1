// Package auth verifies and issues the bearer credentials accepted by the
// gateway. Tokens are signed with a shared secret using HMAC-SHA256 and carry
// a mandatory expiry claim.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingHeader indicates the Authorization header was absent.
	ErrMissingHeader = errors.New("authorization header missing")
	// ErrMalformedHeader indicates the Authorization header was not a
	// two-part "Bearer <token>" value.
	ErrMalformedHeader = errors.New("invalid authorization header format")
	// ErrExpired indicates the token's signature verified but its expiry
	// is in the past.
	ErrExpired = errors.New("token expired")
)

// Claims is the decoded token payload. Arbitrary keys plus the registered
// expiry claim.
type Claims = jwt.MapClaims

// Authenticator verifies tokens against the shared signing secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// New creates an Authenticator for the given shared secret.
func New(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BearerToken extracts the credential from an Authorization header value.
// The header must be exactly two space-separated fields with the scheme
// "Bearer", compared case-insensitively.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

// Verify decodes the token, checks its signature against the shared secret
// and enforces expiry. Expiry failures are reported as ErrExpired; every
// other verification failure keeps the underlying jwt error for the caller's
// 401 detail.
func (a *Authenticator) Verify(token string) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %s", ErrExpired, err)
		}
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// IsVerificationError reports whether err is an ordinary credential failure
// (bad signature, malformed or out-of-window token) as opposed to an
// unexpected internal problem such as a misconfigured signing key. The
// middleware maps the former to 401 and the latter to 500.
func IsVerificationError(err error) bool {
	for _, sentinel := range []error{
		ErrExpired,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrSignatureInvalid,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Issue signs a token carrying the given claims whose expiry is now + ttl.
// Used by the tokengen utility and by tests; the gateway itself never mints
// credentials.
func (a *Authenticator) Issue(payload map[string]any, ttl time.Duration) (string, error) {
	claims := Claims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["exp"] = jwt.NewNumericDate(a.now().Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Subject returns the "sub" claim, or "unknown" when absent. The request
// logger records it after successful authentication.
func Subject(c Claims) string {
	if sub, ok := c["sub"].(string); ok && sub != "" {
		return sub
	}
	return "unknown"
}
