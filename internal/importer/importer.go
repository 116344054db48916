package importer

import (
	"context"
	"fmt"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/app/service"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
)

// Result counts what an import changed
type Result struct {
	CategoriesCreated int
	CategoriesUpdated int
	ParentsLinked     int
	Products          int
	StockRecords      int
	Skipped           []RowError
}

// Importer writes a parsed catalog. Categories are matched by slug and
// products by id, so running the same workbook twice changes nothing.
type Importer struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	stock      repository.StockRepository
}

func NewImporter(categories repository.CategoryRepository, products repository.ProductRepository, stock repository.StockRepository) *Importer {
	return &Importer{
		categories: categories,
		products:   products,
		stock:      stock,
	}
}

func (im *Importer) Import(ctx context.Context, catalog *Catalog) (*Result, error) {
	result := &Result{Skipped: append([]RowError(nil), catalog.Skipped...)}

	if err := im.importCategories(ctx, catalog.Categories, result); err != nil {
		return result, err
	}
	if err := im.importStock(ctx, catalog.Stock, result); err != nil {
		return result, err
	}

	logger.Info("Catalog import finished", map[string]interface{}{
		"categories_created": result.CategoriesCreated,
		"categories_updated": result.CategoriesUpdated,
		"parents_linked":     result.ParentsLinked,
		"products":           result.Products,
		"stock_records":      result.StockRecords,
		"skipped":            len(result.Skipped),
	})
	return result, nil
}

// importCategories upserts every row first and links parents in a second
// pass, so a child may appear above its parent in the sheet.
func (im *Importer) importCategories(ctx context.Context, rows []CategoryRow, result *Result) error {
	if len(rows) == 0 {
		return nil
	}

	existing, err := im.categories.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	bySlug := make(map[string]*model.Category, len(existing)+len(rows))
	for i := range existing {
		bySlug[existing[i].Slug] = &existing[i]
	}

	imported := make([]CategoryRow, 0, len(rows))
	for _, row := range rows {
		slug := service.Slugify(row.Slug)
		if slug == "" {
			slug = service.Slugify(row.Name)
		}
		if slug == "" {
			result.Skipped = append(result.Skipped, RowError{Sheet: CategoriesSheet, Row: row.Row, Err: fmt.Errorf("no usable slug for %q", row.Name)})
			continue
		}
		row.Slug = slug

		category, found := bySlug[slug]
		if !found {
			category = &model.Category{Slug: slug}
		}
		category.Name = row.Name
		category.IsActive = row.IsActive
		category.Description = optional(row.Description)
		category.ImageURL = optional(row.ImageURL)

		if found {
			err = im.categories.Update(ctx, category)
			result.CategoriesUpdated++
		} else {
			err = im.categories.Create(ctx, category)
			result.CategoriesCreated++
		}
		if err != nil {
			return fmt.Errorf("%s row %d: save category %q: %w", CategoriesSheet, row.Row, slug, err)
		}
		bySlug[slug] = category
		imported = append(imported, row)
	}

	for _, row := range imported {
		category := bySlug[row.Slug]
		var parentID *uint
		if row.ParentSlug != "" {
			parent, ok := bySlug[service.Slugify(row.ParentSlug)]
			if !ok || parent.ID == category.ID {
				result.Skipped = append(result.Skipped, RowError{
					Sheet: CategoriesSheet,
					Row:   row.Row,
					Err:   fmt.Errorf("parent %q not found, kept as root", row.ParentSlug),
				})
			} else {
				parentID = &parent.ID
			}
		}

		if sameParent(category.ParentID, parentID) {
			continue
		}
		category.ParentID = parentID
		if err := im.categories.Update(ctx, category); err != nil {
			return fmt.Errorf("%s row %d: link parent of %q: %w", CategoriesSheet, row.Row, row.Slug, err)
		}
		if parentID != nil {
			result.ParentsLinked++
		}
	}
	return nil
}

func (im *Importer) importStock(ctx context.Context, rows []StockRow, result *Result) error {
	seen := make(map[uint]bool)
	for _, row := range rows {
		if !seen[row.ProductID] {
			name := row.ProductName
			if name == "" {
				name = fmt.Sprintf("Product %d", row.ProductID)
			}
			product := &model.Product{
				ID:       row.ProductID,
				Name:     name,
				Slug:     fmt.Sprintf("%s-%d", service.Slugify(name), row.ProductID),
				Price:    row.Price,
				IsActive: true,
			}
			if err := im.products.Upsert(ctx, product); err != nil {
				return fmt.Errorf("%s row %d: save product %d: %w", StockSheet, row.Row, row.ProductID, err)
			}
			seen[row.ProductID] = true
			result.Products++
		}

		record := &model.StockRecord{
			ProductID: row.ProductID,
			Size:      row.Size,
			Color:     row.Color,
			Quantity:  row.Quantity,
		}
		if err := im.stock.Upsert(ctx, record); err != nil {
			return fmt.Errorf("%s row %d: save stock: %w", StockSheet, row.Row, err)
		}
		result.StockRecords++
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
