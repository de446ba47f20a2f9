package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"careerHub/internal/auth"
	"careerHub/internal/database"
)

type stubValidator map[string]*auth.TokenClaims

func (s stubValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		userID, _ := c.Get(ContextUserID)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	r.GET("/", handlers...)
	return r
}

func doGet(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	validator := stubValidator{
		"good":    {UserID: 7, TokenType: auth.TokenTypeAccess},
		"refresh": {UserID: 7, TokenType: auth.TokenTypeRefresh},
	}
	r := newTestRouter(AuthMiddleware(validator))

	assert.Equal(t, http.StatusOK, doGet(r, "Authorization", "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Authorization", "Bearer refresh").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Authorization", "Basic good").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Authorization", "Bearer nope").Code)
}

func TestOptionalAuthMiddleware_AllowsAnonymous(t *testing.T) {
	validator := stubValidator{"good": {UserID: 3, TokenType: auth.TokenTypeAccess}}
	r := newTestRouter(OptionalAuthMiddleware(validator))

	w := doGet(r, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":null}`, w.Body.String())

	w = doGet(r, "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":3}`, w.Body.String())

	w = doGet(r, "Authorization", "Bearer bad")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":null}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	validator := stubValidator{
		"admin": {UserID: 1, Role: database.RoleAdmin, TokenType: auth.TokenTypeAccess},
		"user":  {UserID: 2, Role: database.RoleUser, TokenType: auth.TokenTypeAccess},
	}
	r := newTestRouter(AuthMiddleware(validator), RequireAdmin())

	assert.Equal(t, http.StatusOK, doGet(r, "Authorization", "Bearer admin").Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "Authorization", "Bearer user").Code)
}

func TestPasswordGate(t *testing.T) {
	validator := stubValidator{
		"pending": {UserID: 1, MustChangePassword: true, TokenType: auth.TokenTypeAccess},
		"done":    {UserID: 2, TokenType: auth.TokenTypeAccess},
	}
	r := newTestRouter(AuthMiddleware(validator), RequirePasswordChanged())

	w := doGet(r, "Authorization", "Bearer pending")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "password change required")
	assert.Equal(t, http.StatusOK, doGet(r, "Authorization", "Bearer done").Code)
}

func TestInternalSecretMiddleware(t *testing.T) {
	r := newTestRouter(InternalSecretMiddleware("s3cret"))
	assert.Equal(t, http.StatusOK, doGet(r, InternalSecretHeader, "s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, InternalSecretHeader, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "", "").Code)

	unconfigured := newTestRouter(InternalSecretMiddleware(" "))
	assert.Equal(t, http.StatusServiceUnavailable, doGet(unconfigured, InternalSecretHeader, " ").Code)
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(limiterIdleTTL + time.Minute)
	l.Allow("10.0.0.3")
	l.mu.Lock()
	_, kept := l.limiters["10.0.0.2"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are evicted")
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	r := newTestRouter(NewIPRateLimiter(0.001, 1).Middleware())

	assert.Equal(t, http.StatusOK, doGet(r, "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "", "").Code)

	unlimited := newTestRouter(NewIPRateLimiter(0, 1).Middleware())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doGet(unlimited, "", "").Code)
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	w := doGet(r, "X-Correlation-ID", "abc-123")
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))

	w = doGet(r, "", "")
	assert.NotEmpty(t, w.Body.String())

	w = doGet(r, CorrelationIDHeader, "bad id\nwith newline")
	assert.NotEqual(t, "bad id\nwith newline", w.Body.String())
	assert.Len(t, w.Body.String(), 36, "replaced by a uuid")
}
