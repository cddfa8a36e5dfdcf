// Package identity verifies opaque connection credentials and carries the
// resulting principal through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenQueryParam carries the credential on WebSocket upgrades.
	TokenQueryParam = "token"
	// DefaultTokenTTL matches the lifetime of tokens issued by the login service.
	DefaultTokenTTL = time.Hour
)

// ErrInvalidCredential is returned when a credential is absent, malformed,
// expired, or signed with the wrong key.
var ErrInvalidCredential = errors.New("invalid credential")

type contextKey int

const principalKey contextKey = iota

// Verifier turns a credential into a principal ID.
type Verifier interface {
	Verify(token string) (string, error)
}

// Claims is the credential payload. ID is the user record identifier set by
// the login service; Subject is accepted for tokens minted elsewhere.
type Claims struct {
	ID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the identifier the credential vouches for.
func (c *Claims) Principal() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Subject
}

// JWTVerifier verifies HS256-signed tokens.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// Verify validates the token and returns its principal.
func (v *JWTVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidCredential
	}

	principal := claims.Principal()
	if principal == "" {
		return "", fmt.Errorf("%w: no principal claim", ErrInvalidCredential)
	}
	return principal, nil
}

// Issue mints an HS256 token for principal. Used for development and tests;
// production credentials come from the login service.
func Issue(secret, principal string, ttl time.Duration) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("issue token: empty principal")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		ID: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// WithPrincipal returns a context carrying principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext extracts the principal from the request context.
func PrincipalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey).(string); ok {
		return v
	}
	return ""
}

// TokenFromRequest reads the credential from the Authorization header, then
// from the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// Middleware rejects requests without a valid credential and injects the
// principal into the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				http.Error(w, `{"error":"access denied: no token"}`, http.StatusUnauthorized)
				return
			}
			principal, err := v.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
