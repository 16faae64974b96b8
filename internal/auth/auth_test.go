package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(t *testing.T, m *JWTMiddleware, sub, role string, exp time.Time) string {
	t.Helper()
	s, err := m.Sign(Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	require.NoError(t, err)
	return s
}

func serve(h http.Handler, bearer string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthenticate(t *testing.T) {
	m := NewJWTMiddleware("secret")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ops@example.com", ClaimsFromContext(r.Context()).Subject)
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Authenticate(ok)

	assert.Equal(t, http.StatusUnauthorized, serve(h, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "garbage"))
	assert.Equal(t, http.StatusUnauthorized, serve(h, token(t, m, "ops@example.com", "viewer", time.Now().Add(-time.Minute))))
	assert.Equal(t, http.StatusUnauthorized, serve(h, token(t, NewJWTMiddleware("other"), "ops@example.com", "viewer", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusNoContent, serve(h, token(t, m, "ops@example.com", "viewer", time.Now().Add(time.Hour))))
}

func TestRequirePermission(t *testing.T) {
	m := NewJWTMiddleware("secret")
	rbac := NewRBAC(Roles)
	h := m.Authenticate(rbac.RequirePermission(PermDocumentsWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	exp := time.Now().Add(time.Hour)

	assert.Equal(t, http.StatusForbidden, serve(h, token(t, m, "u", "viewer", exp)))
	assert.Equal(t, http.StatusForbidden, serve(h, token(t, m, "u", "", exp)))
	assert.Equal(t, http.StatusNoContent, serve(h, token(t, m, "u", "uploader", exp)))
	assert.Equal(t, http.StatusNoContent, serve(h, token(t, m, "u", "admin", exp)))
}
