package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
	"github.com/maisonvoile/storefront-backend/internal/websocket"
)

type CartEventsController struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewCartEventsController accepts browser connections only from
// allowedOrigins. Clients that send no Origin header (native apps) are let
// through.
func NewCartEventsController(hub *websocket.Hub, allowedOrigins []string) *CartEventsController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &CartEventsController{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Stream subscribes the connection to the caller's cart events
// GET /api/v1/cart/events
// The stream is keyed by the owner at connect time. A guest stream receives
// cart_owner_changed when its session signs in and should reconnect.
func (ctrl *CartEventsController) Stream(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := cartOwner(c)

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Warn("Failed to upgrade cart event stream", map[string]interface{}{
			"owner": owner.Key(),
			"error": err.Error(),
		})
		return
	}

	client := websocket.NewClient(ctrl.hub, &websocket.Conn{Conn: conn}, owner.Key())
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	log.Info("Cart event stream connected", map[string]interface{}{
		"owner": owner.Key(),
	})
}
