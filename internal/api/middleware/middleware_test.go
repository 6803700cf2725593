package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/internal/auth"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

type staticRoles map[string]bool

func (s staticRoles) IsAdmin(_ context.Context, userID string) (bool, error) {
	if userID == "broken" {
		return false, errors.New("db down")
	}
	return s[userID], nil
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, "", auth.Identity{UserID: userID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func newEngine(required bool, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Auth(auth.NewJWTVerifier(secret, ""), staticRoles{"root": true}, required))
	handlers := append(extra, func(c *gin.Context) {
		capa := CapabilityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": capa.Identity().UserID, "admin": capa.IsAdmin()})
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Optional(t *testing.T) {
	r := newEngine(false)

	w := do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"","admin":false}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(r, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, token(t, "u1"))
	assert.JSONEq(t, `{"user":"u1","admin":false}`, w.Body.String())
}

func TestAuth_Required(t *testing.T) {
	r := newEngine(true)
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Basic abc").Code)
	assert.Equal(t, http.StatusOK, do(r, token(t, "u1")).Code)
}

func TestAuth_RoleLookupFailureIsNotAdmin(t *testing.T) {
	r := newEngine(true)
	w := do(r, token(t, "broken"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"broken","admin":false}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := newEngine(false, RequireAdmin())
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, token(t, "u1")).Code)

	w := do(r, token(t, "root"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"root","admin":true}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, do(r, "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := do(r, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
