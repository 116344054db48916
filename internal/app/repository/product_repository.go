package repository

import (
	"context"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	Upsert(ctx context.Context, product *model.Product) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		First(&product, id).Error
	if err != nil {
		logger.Debug("Product not found by ID in database", map[string]interface{}{
			"product_id": id,
			"error":      err.Error(),
		})
		return nil, err
	}
	return &product, nil
}

// Upsert inserts the product or refreshes its catalog fields when the ID exists
func (r *productRepository) Upsert(ctx context.Context, product *model.Product) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "price", "image_url", "category_id", "is_active", "updated_at"}),
	}).Create(product).Error
	if err != nil {
		logger.Error("Failed to upsert product in database", err, map[string]interface{}{
			"product_id": product.ID,
			"name":       product.Name,
		})
		return err
	}
	return nil
}

// StockRepository reads and writes per-variant stock
type StockRepository interface {
	FindByProductID(ctx context.Context, productID uint) ([]model.StockRecord, error)
	FindVariant(ctx context.Context, productID uint, size, color string) (*model.StockRecord, error)
	FindByProductIDs(ctx context.Context, productIDs []uint) ([]model.StockRecord, error)
	Upsert(ctx context.Context, record *model.StockRecord) error
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) FindByProductID(ctx context.Context, productID uint) ([]model.StockRecord, error) {
	var records []model.StockRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("size ASC, color ASC").
		Find(&records).Error
	if err != nil {
		logger.Error("Failed to find stock by product ID in database", err, map[string]interface{}{
			"product_id": productID,
		})
		return nil, err
	}
	return records, nil
}

func (r *stockRepository) FindVariant(ctx context.Context, productID uint, size, color string) (*model.StockRecord, error) {
	var record model.StockRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND size = ? AND color = ?", productID, size, color).
		First(&record).Error
	if err != nil {
		logger.Debug("Stock variant not found in database", map[string]interface{}{
			"product_id": productID,
			"size":       size,
			"color":      color,
		})
		return nil, err
	}
	return &record, nil
}

func (r *stockRepository) FindByProductIDs(ctx context.Context, productIDs []uint) ([]model.StockRecord, error) {
	if len(productIDs) == 0 {
		return []model.StockRecord{}, nil
	}

	var records []model.StockRecord
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&records).Error; err != nil {
		logger.Error("Failed to find stock by product IDs in database", err, map[string]interface{}{
			"count": len(productIDs),
		})
		return nil, err
	}
	return records, nil
}

func (r *stockRepository) Upsert(ctx context.Context, record *model.StockRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "size"}, {Name: "color"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		logger.Error("Failed to upsert stock record in database", err, map[string]interface{}{
			"product_id": record.ProductID,
			"size":       record.Size,
			"color":      record.Color,
		})
		return err
	}
	return nil
}
