package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/vectorsearch/listings/app/database"
	"gorm.io/gorm"
)

var (
	// ErrProductNotFound is returned when no product matches the given id.
	ErrProductNotFound = errors.New("product not found")
	// ErrConstraintViolation is returned when the store rejects a written row.
	ErrConstraintViolation = errors.New("product violates a store constraint")
	// ErrMissingID is returned when an update is attempted without an id.
	ErrMissingID = errors.New("product id is required")
)

// Connector runs fn on a single pooled connection and releases it afterwards.
type Connector interface {
	WithConn(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ProductsRepository struct {
	conn Connector
}

func NewProductsRepository(conn Connector) *ProductsRepository {
	return &ProductsRepository{
		conn: conn,
	}
}

// List returns every product ordered by id. An empty table yields an empty slice.
func (r *ProductsRepository) List(ctx context.Context) ([]Product, error) {
	products := []Product{}
	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Order("id").Find(&products).Error
	}); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductsRepository) GetByID(ctx context.Context, id uint) (*Product, error) {
	var product Product
	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.First(&product, id).Error
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		return nil, err
	}
	return &product, nil
}

// Create inserts p and returns the id assigned by the store. Any id already
// set on p is ignored; on success p.ID is set to the new id.
func (r *ProductsRepository) Create(ctx context.Context, p *Product) (uint, error) {
	row := *p
	row.ID = 0

	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	}); err != nil {
		return 0, classifyWriteError(err)
	}

	p.ID = row.ID
	return row.ID, nil
}

// Update replaces every field of the product with p.ID. It returns
// ErrProductNotFound when no row has that id.
func (r *ProductsRepository) Update(ctx context.Context, p Product) error {
	if p.ID == 0 {
		return ErrMissingID
	}

	var affected int64
	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Product{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"title":       p.Title,
				"description": p.Description,
				"category":    p.Category,
				"price":       p.Price,
				"brand":       p.Brand,
				"condition":   p.Condition,
				"color":       p.Color,
			})
		affected = res.RowsAffected
		return res.Error
	}); err != nil {
		return classifyWriteError(err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, p.ID)
	}
	return nil
}

// Delete removes the product with the given id. It returns ErrProductNotFound
// when no row has that id.
func (r *ProductsRepository) Delete(ctx context.Context, id uint) error {
	var affected int64
	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&Product{}, id)
		affected = res.RowsAffected
		return res.Error
	}); err != nil {
		return classifyWriteError(err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

// ListCategories returns the distinct category values in use, sorted.
func (r *ProductsRepository) ListCategories(ctx context.Context) ([]string, error) {
	categories := []string{}
	if err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Product{}).
			Distinct("category").
			Order("category").
			Pluck("category", &categories).Error
	}); err != nil {
		return nil, err
	}
	return categories, nil
}

func classifyWriteError(err error) error {
	if database.IsConstraintViolation(err) {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return err
}
