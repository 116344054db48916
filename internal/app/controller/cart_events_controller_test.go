package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
	"github.com/maisonvoile/storefront-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartEventsController_Stream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	ctrl := NewCartEventsController(hub, []string{"https://shop.example.com"})
	router := gin.New()
	router.GET("/api/v1/cart/events", middleware.CartSession("cart_session", time.Hour, false), ctrl.Stream)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/cart/events"

	header := http.Header{}
	header.Set(middleware.CartSessionHeader, testGuestSession)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	owner := "guest:" + testGuestSession
	require.Eventually(t, func() bool { return hub.IsOnline(owner) }, time.Second, 10*time.Millisecond)

	hub.Publish(owner, cart.Event{Type: cart.EventCleared})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event cart.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, cart.EventCleared, event.Type)
}

func TestCartEventsController_RejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	ctrl := NewCartEventsController(hub, []string{"https://shop.example.com"})
	router := gin.New()
	router.GET("/api/v1/cart/events", middleware.CartSession("cart_session", time.Hour, false), ctrl.Stream)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/cart/events"

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := gorillaws.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
