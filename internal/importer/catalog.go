package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	CategoriesSheet = "Categories"
	StockSheet      = "Stock"
)

var (
	ErrSheetMissing  = errors.New("sheet not found in workbook")
	ErrColumnMissing = errors.New("required column missing")
)

// CategoryRow is one line of the Categories sheet. ParentSlug is resolved
// after every category of the sheet exists.
type CategoryRow struct {
	Row         int
	Name        string
	Slug        string
	ParentSlug  string
	IsActive    bool
	Description string
	ImageURL    string
}

// StockRow is one variant line of the Stock sheet. Rows sharing a ProductID
// describe the same product.
type StockRow struct {
	Row         int
	ProductID   uint
	ProductName string
	Price       decimal.Decimal
	Size        string
	Color       string
	Quantity    int
}

// RowError reports a row that was skipped
type RowError struct {
	Sheet string
	Row   int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err)
}

type Catalog struct {
	Categories []CategoryRow
	Stock      []StockRow
	Skipped    []RowError
}

// ReadCatalogFile opens an xlsx workbook from disk
func ReadCatalogFile(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()
	return readCatalog(f)
}

func ReadCatalog(r io.Reader) (*Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read XLSX: %w", err)
	}
	defer f.Close()
	return readCatalog(f)
}

// readCatalog parses both sheets. Either sheet may be absent, but not both.
// Columns are found by header name, so their order does not matter.
func readCatalog(f *excelize.File) (*Catalog, error) {
	catalog := &Catalog{}

	hasCategories := hasSheet(f, CategoriesSheet)
	hasStock := hasSheet(f, StockSheet)
	if !hasCategories && !hasStock {
		return nil, fmt.Errorf("%w: need %q or %q", ErrSheetMissing, CategoriesSheet, StockSheet)
	}

	if hasCategories {
		rows, err := f.GetRows(CategoriesSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s rows: %w", CategoriesSheet, err)
		}
		if err := catalog.parseCategories(rows); err != nil {
			return nil, err
		}
	}

	if hasStock {
		rows, err := f.GetRows(StockSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s rows: %w", StockSheet, err)
		}
		if err := catalog.parseStock(rows); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}

func hasSheet(f *excelize.File, name string) bool {
	idx, err := f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

func (c *Catalog) parseCategories(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	cols := headerIndex(rows[0])
	if _, ok := cols["name"]; !ok {
		return fmt.Errorf("%w: %s.name", ErrColumnMissing, CategoriesSheet)
	}

	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		if blank(row) {
			continue
		}

		name := cell(row, cols, "name")
		if name == "" {
			c.skip(CategoriesSheet, rowNum, errors.New("name is empty"))
			continue
		}
		active, err := parseBool(cell(row, cols, "active"), true)
		if err != nil {
			c.skip(CategoriesSheet, rowNum, err)
			continue
		}

		c.Categories = append(c.Categories, CategoryRow{
			Row:         rowNum,
			Name:        name,
			Slug:        cell(row, cols, "slug"),
			ParentSlug:  cell(row, cols, "parent_slug"),
			IsActive:    active,
			Description: cell(row, cols, "description"),
			ImageURL:    cell(row, cols, "image_url"),
		})
	}
	return nil
}

func (c *Catalog) parseStock(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	cols := headerIndex(rows[0])
	for _, required := range []string{"product_id", "price", "quantity"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrColumnMissing, StockSheet, required)
		}
	}

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}

		productID, err := strconv.ParseUint(cell(row, cols, "product_id"), 10, 32)
		if err != nil || productID == 0 {
			c.skip(StockSheet, rowNum, fmt.Errorf("invalid product_id %q", cell(row, cols, "product_id")))
			continue
		}
		price, err := decimal.NewFromString(cell(row, cols, "price"))
		if err != nil || price.IsNegative() {
			c.skip(StockSheet, rowNum, fmt.Errorf("invalid price %q", cell(row, cols, "price")))
			continue
		}
		quantity, err := strconv.Atoi(cell(row, cols, "quantity"))
		if err != nil || quantity < 0 {
			c.skip(StockSheet, rowNum, fmt.Errorf("invalid quantity %q", cell(row, cols, "quantity")))
			continue
		}

		c.Stock = append(c.Stock, StockRow{
			Row:         rowNum,
			ProductID:   uint(productID),
			ProductName: cell(row, cols, "product_name"),
			Price:       price,
			Size:        cell(row, cols, "size"),
			Color:       cell(row, cols, "color"),
			Quantity:    quantity,
		})
	}
	return nil
}

func (c *Catalog) skip(sheet string, row int, err error) {
	c.Skipped = append(c.Skipped, RowError{Sheet: sheet, Row: row, Err: err})
}

// headerIndex maps normalized header names ("Parent Slug" -> "parent_slug")
// to column positions
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		if key != "" {
			cols[key] = i
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string, fallback bool) (bool, error) {
	switch strings.ToLower(s) {
	case "":
		return fallback, nil
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid active flag %q", s)
	}
}
