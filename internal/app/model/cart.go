package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKey identifies a cart line. No two lines of one cart share a key.
type LineKey struct {
	ProductID uint   `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// CartLineItem is one line of the in-memory cart. MaxQuantity is the stock
// snapshot for this exact variant as of the last sync.
type CartLineItem struct {
	ProductID   uint            `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	Quantity    int             `json:"quantity"`
	MaxQuantity int             `json:"max_quantity"`
}

func (i CartLineItem) Key() LineKey {
	return LineKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// Subtotal is price times quantity.
func (i CartLineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartItem is the persisted row of a signed-in user's cart, one per line key.
// Rows are hard deleted so the unique key stays usable for upserts.
type CartItem struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	UserID      uint            `gorm:"not null;uniqueIndex:idx_cart_items_line" json:"user_id"`
	ProductID   uint            `gorm:"not null;uniqueIndex:idx_cart_items_line" json:"product_id"`
	Size        string          `gorm:"size:32;not null;uniqueIndex:idx_cart_items_line" json:"size"`
	Color       string          `gorm:"size:64;not null;uniqueIndex:idx_cart_items_line" json:"color"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Image       string          `json:"image"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	MaxQuantity int             `gorm:"not null;default:0" json:"max_quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (c CartItem) LineItem() CartLineItem {
	return CartLineItem{
		ProductID:   c.ProductID,
		Name:        c.Name,
		Price:       c.Price,
		Image:       c.Image,
		Size:        c.Size,
		Color:       c.Color,
		Quantity:    c.Quantity,
		MaxQuantity: c.MaxQuantity,
	}
}

// NewCartItem maps a line onto the persisted row of userID.
func NewCartItem(userID uint, item CartLineItem) *CartItem {
	return &CartItem{
		UserID:      userID,
		ProductID:   item.ProductID,
		Size:        item.Size,
		Color:       item.Color,
		Name:        item.Name,
		Price:       item.Price,
		Image:       item.Image,
		Quantity:    item.Quantity,
		MaxQuantity: item.MaxQuantity,
	}
}
