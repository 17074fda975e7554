package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bakery-orders/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSettingNotFound   = errors.New("setting not found")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product with its variants
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachVariants(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySlug retrieves a product with its variants by slug
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE slug = $1", slug)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, slug)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachVariants(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) attachVariants(ctx context.Context, product *models.Product) error {
	return s.db.SelectContext(ctx, &product.Variants,
		"SELECT * FROM product_variants WHERE product_id = $1 ORDER BY id", product.ID)
}

// GetProductsByIDs retrieves multiple products with variants, keyed by id
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	if len(ids) == 0 {
		return map[int64]*models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	query, args, err = sqlx.In("SELECT * FROM product_variants WHERE product_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var variants []models.ProductVariant
	if err := s.db.SelectContext(ctx, &variants, query, args...); err != nil {
		return nil, err
	}

	for _, v := range variants {
		if p, ok := byID[v.ProductID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}

	return byID, nil
}

// GetVariant retrieves a single (product, color, size) stock counter
func (s *Store) GetVariant(ctx context.Context, productID int64, color, size string) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := s.db.GetContext(ctx, &v,
		"SELECT * FROM product_variants WHERE product_id = $1 AND color = $2 AND size = $3",
		productID, color, size)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: product=%d color=%s size=%s", ErrVariantNotFound, productID, color, size)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DecrementVariantStock atomically deducts quantity from a variant's stock.
// The guard predicate keeps count_in_stock from going negative; zero rows
// affected means the variant is gone or stock ran short.
func (s *Store) DecrementVariantStock(ctx context.Context, productID int64, color, size string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_variants
		 SET count_in_stock = count_in_stock - $1
		 WHERE product_id = $2 AND color = $3 AND size = $4 AND count_in_stock >= $1`,
		quantity, productID, color, size)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: product=%d color=%s size=%s requested=%d",
			ErrInsufficientStock, productID, color, size, quantity)
	}
	return nil
}

// GetSetting retrieves the single-row store configuration
func (s *Store) GetSetting(ctx context.Context) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.GetContext(ctx, &setting, "SELECT data FROM settings WHERE id = 1")
	if err == sql.ErrNoRows {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}
