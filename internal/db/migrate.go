package db

import (
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table owned by this service
func Models() []interface{} {
	return []interface{}{
		&model.Category{},
		&model.Product{},
		&model.StockRecord{},
		&model.CartItem{},
	}
}

// Migrate runs auto-migrations against the global connection
func Migrate() error {
	return MigrateDB(DB)
}

func MigrateDB(conn *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}
