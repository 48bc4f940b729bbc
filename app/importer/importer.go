// Package importer loads product listings from spreadsheets.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/models"
	"github.com/xuri/excelize/v2"
)

// Columns every sheet must provide in its header row, in any order.
var Columns = []string{"title", "description", "category", "price", "brand", "condition", "color"}

// RowError describes a sheet row that could not be turned into a product.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

type Inserter interface {
	Create(ctx context.Context, p *models.Product) (uint, error)
}

// ReadListings parses products from the named sheet, or the first sheet when
// sheet is empty. Rows with problems are returned as RowErrors and skipped;
// a missing header column fails the whole read.
func ReadListings(r io.Reader, sheet string) ([]models.Product, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.New("spreadsheet has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("sheet %q has no %q column", sheet, col)
		}
	}

	var (
		products  []models.Product
		rowErrors []RowError
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}

		values := make(map[string]string, len(Columns))
		var missing []string
		for _, col := range Columns {
			v := cell(row, index[col])
			if v == "" {
				missing = append(missing, col)
			}
			values[col] = v
		}
		if len(missing) > 0 {
			rowErrors = append(rowErrors, RowError{Row: rowNum, Err: fmt.Errorf("missing %s", strings.Join(missing, ", "))})
			continue
		}

		price, err := decimal.NewFromString(values["price"])
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: rowNum, Err: fmt.Errorf("invalid price %q", values["price"])})
			continue
		}
		if price.IsNegative() {
			rowErrors = append(rowErrors, RowError{Row: rowNum, Err: errors.New("negative price")})
			continue
		}

		products = append(products, models.Product{
			Title:       values["title"],
			Description: values["description"],
			Category:    values["category"],
			Price:       price.String(),
			Brand:       values["brand"],
			Condition:   values["condition"],
			Color:       values["color"],
		})
	}

	return products, rowErrors, nil
}

// Import inserts products one by one. Rows the store rejects are logged and
// skipped; any other failure stops the import.
func Import(ctx context.Context, repo Inserter, products []models.Product, logger *logrus.Logger) (int, error) {
	imported := 0
	for i := range products {
		id, err := repo.Create(ctx, &products[i])
		if err != nil {
			if errors.Is(err, models.ErrConstraintViolation) {
				logger.WithError(err).Warnf("Skipping listing %q", products[i].Title)
				continue
			}
			return imported, fmt.Errorf("failed to import listing %q: %w", products[i].Title, err)
		}
		logger.Debugf("Imported listing %q as id %d", products[i].Title, id)
		imported++
	}
	return imported, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
