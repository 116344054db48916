package websocket

import (
	"encoding/json"
	"sync"

	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
)

const sendBufferSize = 64

// Client is one websocket connection subscribed to a cart owner's events
type Client struct {
	Hub   *Hub
	Conn  *Conn
	Owner string
	Send  chan []byte
}

func NewClient(hub *Hub, conn *Conn, owner string) *Client {
	return &Client{
		Hub:   hub,
		Conn:  conn,
		Owner: owner,
		Send:  make(chan []byte, sendBufferSize),
	}
}

type envelope struct {
	owner   string
	payload []byte
}

// Hub fans cart events out to every connection of the same owner, so a cart
// changed in one tab or device refreshes the others.
type Hub struct {
	// owner key -> connections (multi-device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan envelope, 1024),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.Owner] = append(h.clients[client.Owner], client)
			sessions := len(h.clients[client.Owner])
			h.mu.Unlock()
			logger.Debug("Cart stream client registered", map[string]interface{}{
				"owner":    client.Owner,
				"sessions": sessions,
			})

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.clients[msg.owner] {
				select {
				case client.Send <- msg.payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				logger.Warn("Cart stream client too slow, disconnecting", map[string]interface{}{
					"owner": client.Owner,
				})
				h.remove(client)
			}

		case <-h.done:
			h.mu.Lock()
			for owner, list := range h.clients {
				for _, client := range list {
					close(client.Send)
				}
				delete(h.clients, owner)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove drops client and closes its send channel once
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.clients[client.Owner]
	if !ok {
		return
	}
	kept := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return
	}
	if len(kept) == 0 {
		delete(h.clients, client.Owner)
	} else {
		h.clients[client.Owner] = kept
	}
	close(client.Send)
}

// Publish implements cart.Notifier. Events are dropped when nobody listens
// or the broadcast queue is full.
func (h *Hub) Publish(owner string, event cart.Event) {
	if !h.IsOnline(owner) {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal cart event", err, map[string]interface{}{
			"owner": owner,
			"type":  event.Type,
		})
		return
	}

	select {
	case h.broadcast <- envelope{owner: owner, payload: payload}:
	default:
		logger.Warn("Cart event dropped, broadcast queue full", map[string]interface{}{
			"owner": owner,
			"type":  event.Type,
		})
	}
}

// Register and Unregister return immediately once the hub is stopped, so
// connection goroutines still unwinding at shutdown never block.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stop ends Run and closes every client
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) IsOnline(owner string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[owner]) > 0
}

func (h *Hub) Connections(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[owner])
}
