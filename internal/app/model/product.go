package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	Name       string          `gorm:"not null" json:"name"`
	Slug       string          `gorm:"size:160;uniqueIndex" json:"slug"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	ImageURL   string          `json:"image_url"`
	CategoryID *uint           `gorm:"index" json:"category_id,omitempty"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`

	Stock []StockRecord `gorm:"foreignKey:ProductID" json:"stock,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// StockRecord is the available quantity of one product variant (size + color).
type StockRecord struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_product_stocks_variant" json:"product_id"`
	Size      string    `gorm:"size:32;not null;uniqueIndex:idx_product_stocks_variant" json:"size"`
	Color     string    `gorm:"size:64;not null;uniqueIndex:idx_product_stocks_variant" json:"color"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StockRecord) TableName() string {
	return "product_stocks"
}
