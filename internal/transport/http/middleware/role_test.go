package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtinfra "github.com/account-validity/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func withClaims(req *http.Request, claims *jwtinfra.Claims) *http.Request {
	ctx := context.WithValue(req.Context(), ClaimsKey, claims)
	return req.WithContext(ctx)
}

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	RequireRole("admin")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole_WrongRole(t *testing.T) {
	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), &jwtinfra.Claims{Role: "user"})
	rr := httptest.NewRecorder()
	RequireRole("admin")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireRole_CorrectRole(t *testing.T) {
	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), &jwtinfra.Claims{Role: "admin"})
	rr := httptest.NewRecorder()
	RequireRole("admin")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_MultipleAllowedRoles(t *testing.T) {
	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), &jwtinfra.Claims{Role: "user"})
	rr := httptest.NewRecorder()
	RequireRole("admin", "user")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
