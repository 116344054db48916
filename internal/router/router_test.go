package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maisonvoile/storefront-backend/config"
	"github.com/maisonvoile/storefront-backend/internal/app/controller"
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/app/service"
	"github.com/maisonvoile/storefront-backend/internal/cache"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
	"github.com/maisonvoile/storefront-backend/internal/websocket"
	"github.com/maisonvoile/storefront-backend/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

func setupRouter(t *testing.T) *gin.Engine {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode, Environment: "test"},
		JWT:    config.JWTConfig{Secret: testSecret},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"https://shop.example.com"}},
		Cart:   config.CartConfig{SessionCookie: "cart_session", GuestTTL: time.Hour},
	}

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	stock := repository.NewStockRepository(testDB)
	manager := cart.NewManager(repository.NewCartRepository(testDB), cart.NewMemoryGuestStore(), stock, hub)
	t.Cleanup(manager.Wait)

	r := NewRouter(
		controller.NewCategoryController(service.NewCategoryService(repository.NewCategoryRepository(testDB), cache.NewMemoryTagCache(), time.Hour)),
		controller.NewCartController(service.NewCartService(manager, repository.NewProductRepository(testDB), stock)),
		controller.NewCartEventsController(hub, cfg.CORS.AllowedOrigins),
		controller.NewUploadController(nil),
		middleware.NewAuthMiddleware(cfg.JWT.Secret),
		cfg,
	)
	return r.Setup()
}

func bearer(t *testing.T, role model.UserRole) string {
	tokens, err := util.GenerateTokenPair(1, "staff@example.com", string(role), testSecret, time.Hour, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tokens.AccessToken
}

func TestRouter_Health(t *testing.T) {
	engine := setupRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_AdminRequiresRole(t *testing.T) {
	engine := setupRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/categories/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/categories/1", nil)
	req.Header.Set("Authorization", bearer(t, model.RoleUser))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/admin/categories/1", nil)
	req.Header.Set("Authorization", bearer(t, model.RoleAdmin))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CartIssuesSession(t *testing.T) {
	engine := setupRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.CartSessionHeader))
}

func TestRouter_CORSPreflight(t *testing.T) {
	engine := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.CartSessionHeader)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
