package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maisonvoile/storefront-backend/config"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/maisonvoile/storefront-backend/internal/importer"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/seed/main.go <catalog.xlsx> [-y]")
		os.Exit(2)
	}
	filePath := os.Args[1]
	assumeYes := len(os.Args) > 2 && os.Args[2] == "-y"

	logger.Initialize(logger.Config{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	catalog, err := importer.ReadCatalogFile(filePath)
	if err != nil {
		logger.Fatal("Failed to read catalog workbook", err, map[string]interface{}{
			"file": filePath,
		})
	}

	fmt.Printf("Categories: %d, stock rows: %d, unreadable rows: %d\n",
		len(catalog.Categories), len(catalog.Stock), len(catalog.Skipped))
	for _, skipped := range catalog.Skipped {
		fmt.Printf("  skipping %s\n", skipped.Error())
	}

	if !assumeYes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	conn := db.GetDB()
	im := importer.NewImporter(
		repository.NewCategoryRepository(conn),
		repository.NewProductRepository(conn),
		repository.NewStockRepository(conn),
	)

	result, err := im.Import(context.Background(), catalog)
	if err != nil {
		logger.Fatal("Catalog import failed", err)
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Categories created: %d, updated: %d, parents linked: %d\n",
		result.CategoriesCreated, result.CategoriesUpdated, result.ParentsLinked)
	fmt.Printf("Products: %d, stock records: %d, skipped rows: %d\n",
		result.Products, result.StockRecords, len(result.Skipped))
}
