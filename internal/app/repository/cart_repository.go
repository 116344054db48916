package repository

import (
	"context"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository persists signed-in carts, one row per (user, product, size, color)
type CartRepository interface {
	Upsert(ctx context.Context, item *model.CartItem) error
	DeleteByKey(ctx context.Context, userID uint, key model.LineKey) error
	DeleteByUserID(ctx context.Context, userID uint) error
	FindByUserID(ctx context.Context, userID uint) ([]model.CartItem, error)
	ClampToStock(ctx context.Context) (int64, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

// Upsert overwrites any existing quantity for the same line key
func (r *cartRepository) Upsert(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Upserting cart item in database", map[string]interface{}{
		"user_id":    item.UserID,
		"product_id": item.ProductID,
		"size":       item.Size,
		"color":      item.Color,
		"quantity":   item.Quantity,
	})

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}, {Name: "size"}, {Name: "color"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "price", "image", "quantity", "max_quantity", "updated_at",
		}),
	}).Create(item).Error
	if err != nil {
		logger.Error("Failed to upsert cart item in database", err, map[string]interface{}{
			"user_id":    item.UserID,
			"product_id": item.ProductID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) DeleteByKey(ctx context.Context, userID uint, key model.LineKey) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND size = ? AND color = ?", userID, key.ProductID, key.Size, key.Color).
		Delete(&model.CartItem{}).Error
	if err != nil {
		logger.Error("Failed to delete cart item from database", err, map[string]interface{}{
			"user_id":    userID,
			"product_id": key.ProductID,
			"size":       key.Size,
			"color":      key.Color,
		})
		return err
	}

	logger.Debug("Cart item deleted from database", map[string]interface{}{
		"user_id":    userID,
		"product_id": key.ProductID,
	})
	return nil
}

func (r *cartRepository) DeleteByUserID(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error; err != nil {
		logger.Error("Failed to delete cart items by user ID from database", err, map[string]interface{}{
			"user_id": userID,
		})
		return err
	}

	logger.Debug("Cart items deleted by user ID from database", map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

func (r *cartRepository) FindByUserID(ctx context.Context, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		logger.Error("Failed to find cart items by user ID in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Debug("Cart items found by user ID in database", map[string]interface{}{
		"user_id": userID,
		"count":   len(items),
	})
	return items, nil
}

// ClampToStock refreshes max_quantity from product_stocks, lowers quantities
// above it and drops rows whose variant is out of stock or gone. Returns the
// number of rows touched.
func (r *cartRepository) ClampToStock(ctx context.Context) (int64, error) {
	var touched int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stockFor := func() *gorm.DB {
			return tx.Model(&model.StockRecord{}).
				Select("product_stocks.quantity").
				Where("product_stocks.product_id = cart_items.product_id AND product_stocks.size = cart_items.size AND product_stocks.color = cart_items.color")
		}

		removed := tx.Where("COALESCE((?), 0) <= 0", stockFor()).Delete(&model.CartItem{})
		if removed.Error != nil {
			return removed.Error
		}
		touched += removed.RowsAffected

		stale := tx.Model(&model.CartItem{}).
			Where("max_quantity <> (?) OR quantity > (?)", stockFor(), stockFor()).
			Updates(map[string]interface{}{
				"max_quantity": stockFor(),
				"quantity":     gorm.Expr("CASE WHEN quantity > (?) THEN (?) ELSE quantity END", stockFor(), stockFor()),
			})
		if stale.Error != nil {
			return stale.Error
		}
		touched += stale.RowsAffected
		return nil
	})
	if err != nil {
		logger.Error("Failed to clamp cart items to stock", err)
		return 0, err
	}

	logger.Debug("Cart items clamped to stock", map[string]interface{}{
		"touched": touched,
	})
	return touched, nil
}
