package repository

import (
	"context"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

type CategoryRepository interface {
	FindActive(ctx context.Context) ([]model.Category, error)
	FindActiveRoots(ctx context.Context, limit int) ([]model.Category, error)
	FindAll(ctx context.Context) ([]model.Category, error)
	FindByID(ctx context.Context, id uint) (*model.Category, error)
	SlugExists(ctx context.Context, slug string, exceptID uint) (bool, error)
	Create(ctx context.Context, category *model.Category) error
	Update(ctx context.Context, category *model.Category) error
	Delete(ctx context.Context, id uint) error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// FindActive returns every active category ordered by name
func (r *categoryRepository) FindActive(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		logger.Error("Failed to find active categories in database", err)
		return nil, err
	}

	logger.Debug("Active categories found in database", map[string]interface{}{
		"count": len(categories),
	})
	return categories, nil
}

// FindActiveRoots returns active categories without a parent ordered by name.
// limit <= 0 means no limit.
func (r *categoryRepository) FindActiveRoots(ctx context.Context, limit int) ([]model.Category, error) {
	query := r.db.WithContext(ctx).
		Where("parent_id IS NULL AND is_active = ?", true).
		Order("name ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var categories []model.Category
	if err := query.Find(&categories).Error; err != nil {
		logger.Error("Failed to find root categories in database", err, map[string]interface{}{
			"limit": limit,
		})
		return nil, err
	}

	logger.Debug("Root categories found in database", map[string]interface{}{
		"limit": limit,
		"count": len(categories),
	})
	return categories, nil
}

// FindAll includes inactive categories; used for parent cycle checks
func (r *categoryRepository) FindAll(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		logger.Error("Failed to find categories in database", err)
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) FindByID(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		logger.Debug("Category not found by ID in database", map[string]interface{}{
			"category_id": id,
			"error":       err.Error(),
		})
		return nil, err
	}
	return &category, nil
}

// SlugExists reports whether another category, active or not, owns slug.
// exceptID 0 checks against every category.
func (r *categoryRepository) SlugExists(ctx context.Context, slug string, exceptID uint) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.Category{}).Where("slug = ?", slug)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		logger.Error("Failed to check category slug in database", err, map[string]interface{}{
			"slug": slug,
		})
		return false, err
	}
	return count > 0, nil
}

func (r *categoryRepository) Create(ctx context.Context, category *model.Category) error {
	logger.Debug("Creating category in database", map[string]interface{}{
		"name":      category.Name,
		"slug":      category.Slug,
		"parent_id": category.ParentID,
	})

	active := category.IsActive
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(category).Error; err != nil {
			return err
		}
		// gorm leaves zero values to the column default, which is true
		if !active {
			return tx.Model(category).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to create category in database", err, map[string]interface{}{
			"slug": category.Slug,
		})
		return err
	}
	category.IsActive = active

	logger.Debug("Category created in database", map[string]interface{}{
		"category_id": category.ID,
		"slug":        category.Slug,
	})
	return nil
}

func (r *categoryRepository) Update(ctx context.Context, category *model.Category) error {
	if err := r.db.WithContext(ctx).Save(category).Error; err != nil {
		logger.Error("Failed to update category in database", err, map[string]interface{}{
			"category_id": category.ID,
		})
		return err
	}

	logger.Debug("Category updated in database", map[string]interface{}{
		"category_id": category.ID,
	})
	return nil
}

// Delete removes the category. Direct children are detached to roots rather
// than deleted with it.
func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Category{}).
			Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			logger.Error("Failed to detach child categories", err, map[string]interface{}{
				"category_id": id,
			})
			return err
		}

		result := tx.Delete(&model.Category{}, id)
		if result.Error != nil {
			logger.Error("Failed to delete category from database", result.Error, map[string]interface{}{
				"category_id": id,
			})
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		logger.Debug("Category deleted from database", map[string]interface{}{
			"category_id": id,
		})
		return nil
	})
}
