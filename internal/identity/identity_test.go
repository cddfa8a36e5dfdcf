package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	token, err := Issue(testSecret, "user-42", time.Minute)
	require.NoError(t, err)

	principal, err := NewJWTVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", principal)
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	wrongKey, err := Issue("other-secret", "user-42", time.Minute)
	require.NoError(t, err)

	expiredClaims := Claims{
		ID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "user-42"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noPrincipal, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong key":    wrongKey,
		"expired":      expired,
		"alg none":     unsigned,
		"no principal": noPrincipal,
	}

	v := NewJWTVerifier(testSecret)
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestClaimsPrincipalFallsBackToSubject(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "google-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	principal, err := NewJWTVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "google-123", principal)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(NewJWTVerifier(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := Issue(testSecret, "user-7", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/history/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-7", seen)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/x?token=bogus", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
