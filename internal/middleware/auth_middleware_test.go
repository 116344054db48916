package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-for-middleware"

func setupMiddlewareTest() (*gin.Engine, *AuthMiddleware) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router, NewAuthMiddleware(testJWTSecret)
}

func generateTestToken(t *testing.T, userID uint, email, role string) string {
	tokens, err := util.GenerateTokenPair(userID, email, role, testJWTSecret, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return tokens.AccessToken
}

func identityHandler(c *gin.Context) {
	userID, ok := GetUserID(c)
	role, _ := GetUserRole(c)
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "signed_in": ok, "role": role})
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/test", auth.Authenticate(), identityHandler)

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "valid token", header: "Bearer " + generateTestToken(t, 1, "a@example.com", "user"), status: http.StatusOK, body: `"user_id":1`},
		{name: "token in query", query: "?token=" + generateTestToken(t, 2, "b@example.com", "user"), status: http.StatusOK, body: `"user_id":2`},
		{name: "no token", status: http.StatusUnauthorized, body: "AUTH_UNAUTHORIZED"},
		{name: "missing bearer prefix", header: "invalid-token", status: http.StatusUnauthorized, body: "AUTH_TOKEN_INVALID"},
		{name: "wrong scheme", header: "Basic token123", status: http.StatusUnauthorized, body: "AUTH_TOKEN_INVALID"},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized, body: "AUTH_TOKEN_INVALID"},
		{name: "bad signature", header: "Bearer invalid.token.here", status: http.StatusUnauthorized, body: "AUTH_TOKEN_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestAuthMiddleware_Authenticate_Expired(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/test", auth.Authenticate(), identityHandler)

	tokens, err := util.GenerateTokenPair(1, "a@example.com", "user", testJWTSecret, time.Nanosecond, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_TOKEN_EXPIRED")
}

func TestAuthMiddleware_OptionalAuthenticate(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/test", auth.OptionalAuthenticate(), identityHandler)

	t.Run("guest", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"signed_in":false`)
	})

	t.Run("invalid token continues as guest", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"signed_in":false`)
	})

	t.Run("signed in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+generateTestToken(t, 9, "c@example.com", "user"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":9`)
		assert.Contains(t, w.Body.String(), `"signed_in":true`)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/admin", auth.Authenticate(), auth.RequireRole(model.RoleAdmin), identityHandler)
	router.GET("/norole", auth.RequireRole(model.RoleAdmin), identityHandler)

	tests := []struct {
		name   string
		path   string
		role   string
		status int
	}{
		{name: "admin allowed", path: "/admin", role: "admin", status: http.StatusOK},
		{name: "user forbidden", path: "/admin", role: "user", status: http.StatusForbidden},
		{name: "no identity", path: "/norole", role: "admin", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+generateTestToken(t, 1, "a@example.com", tt.role))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCartSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CartSession("cart_session", time.Hour, false))
	router.GET("/cart", func(c *gin.Context) {
		c.String(http.StatusOK, GetCartSession(c))
	})

	t.Run("issues a session", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))

		issued := w.Body.String()
		assert.True(t, validSessionID(issued))
		assert.Equal(t, issued, w.Header().Get(CartSessionHeader))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "cart_session="+issued)
	})

	t.Run("keeps header session", func(t *testing.T) {
		id := "3f1b9a4e-8c55-4a61-9d7e-2f0c1b6a7e10"
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(CartSessionHeader, id)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("falls back to cookie", func(t *testing.T) {
		id := "a7d3e2c1-0b9f-4e8d-a6c5-b4a3f2e1d0c9"
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: id})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("replaces garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(CartSessionHeader, "../../etc/passwd")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.NotEqual(t, "../../etc/passwd", w.Body.String())
		assert.True(t, validSessionID(w.Body.String()))
	})
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(LoggingMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	id := "0d8f5c3b-7a2e-4b19-8e6d-5c4b3a2f1e0d"
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, id)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Body.String())
}
