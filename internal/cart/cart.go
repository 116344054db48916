// Package cart keeps live shopping carts in memory and syncs them to the
// persisted cart table (signed-in users) or the guest store (anonymous
// sessions).
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/shopspring/decimal"
)

var (
	ErrMaxStockReached   = errors.New("max stock reached for this item")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Event types pushed to the cart event stream.
const (
	EventItemAdded     = "cart_item_added"
	EventUpdated       = "cart_updated"
	EventCleared       = "cart_cleared"
	EventStockAdjusted = "stock_adjusted"
	// EventOwnerChanged tells a guest stream that its session signed in.
	// Streams are keyed at connect time, so the client reconnects to follow
	// the user cart.
	EventOwnerChanged = "cart_owner_changed"
)

// RemoteStore is the persisted cart of signed-in users.
type RemoteStore interface {
	Upsert(ctx context.Context, item *model.CartItem) error
	DeleteByKey(ctx context.Context, userID uint, key model.LineKey) error
	DeleteByUserID(ctx context.Context, userID uint) error
	FindByUserID(ctx context.Context, userID uint) ([]model.CartItem, error)
}

// GuestStore keeps anonymous carts between requests.
type GuestStore interface {
	Load(ctx context.Context, sessionID string) ([]model.CartLineItem, error)
	Save(ctx context.Context, sessionID string, items []model.CartLineItem) error
	Delete(ctx context.Context, sessionID string) error
}

// StockLookup returns current stock for the given products.
type StockLookup interface {
	FindByProductIDs(ctx context.Context, productIDs []uint) ([]model.StockRecord, error)
}

// Notifier receives cart events addressed to every connection of an owner.
type Notifier interface {
	Publish(owner string, event Event)
}

// Owner identifies whose cart a reconciler holds. UserID 0 means anonymous.
type Owner struct {
	UserID    uint
	SessionID string
}

func (o Owner) Authenticated() bool {
	return o.UserID != 0
}

// Key is the registry and event stream key of the owner.
func (o Owner) Key() string {
	if o.Authenticated() {
		return fmt.Sprintf("user:%d", o.UserID)
	}
	return "guest:" + o.SessionID
}

// Event is one message on the cart event stream.
type Event struct {
	Type  string               `json:"type"`
	Owner string               `json:"owner,omitempty"`
	Item  *model.CartLineItem  `json:"item,omitempty"`
	Items []model.CartLineItem `json:"items"`
	Count int                  `json:"count"`
}

// State is a point-in-time copy of a cart.
type State struct {
	Owner     string               `json:"owner"`
	Items     []model.CartLineItem `json:"items"`
	IsOpen    bool                 `json:"is_open"`
	IsLoading bool                 `json:"is_loading"`
	ItemCount int                  `json:"item_count"`
	Total     decimal.Decimal      `json:"total"`
	Pending   int                  `json:"pending_sync"`
}

func totals(items []model.CartLineItem) (int, decimal.Decimal) {
	count := 0
	total := decimal.Zero
	for _, item := range items {
		count += item.Quantity
		total = total.Add(item.Subtotal())
	}
	return count, total
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, Event) {}
