package service

import (
	"context"
	"errors"
	"time"

	"bakery-orders/internal/models"
	"bakery-orders/internal/redisclient"
	"bakery-orders/internal/util"

	"go.uber.org/zap"
)

// ProductStore is the database side of catalog reads
type ProductStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetVariant(ctx context.Context, productID int64, color, size string) (*models.ProductVariant, error)
}

// Catalog serves current price/discount/stock snapshots for a set of products
type Catalog interface {
	Products(ctx context.Context, ids []int64) (map[int64]*models.Product, error)
}

// CatalogLoader reads product snapshots through the Redis cache with a
// database fallback. The validator and drift refresher only ever read through
// here, so catalog load stays off the primary store on cart reopens.
type CatalogLoader struct {
	store  ProductStore
	cache  *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogLoader creates a catalog loader. cache may be nil, in which case
// every read goes to the database.
func NewCatalogLoader(store ProductStore, cache *redisclient.Client, ttl time.Duration) *CatalogLoader {
	return &CatalogLoader{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Products returns snapshots keyed by product id. Products missing from both
// cache and database are simply absent from the map; callers treat absence as
// "no longer available".
func (cl *CatalogLoader) Products(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	result := make(map[int64]*models.Product, len(ids))
	missing := make([]int64, 0, len(ids))

	for _, id := range ids {
		if _, ok := result[id]; ok {
			continue
		}
		if cl.cache != nil {
			product, err := cl.cache.GetCachedProduct(ctx, id)
			if err == nil {
				result[id] = product
				continue
			}
			if !errors.Is(err, redisclient.ErrCacheMiss) {
				cl.logger.Warn("Catalog cache read failed, falling back to DB",
					zap.Int64("product_id", id),
					zap.Error(err))
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fromDB, err := cl.store.GetProductsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	for id, product := range fromDB {
		result[id] = product
		if cl.cache != nil {
			if err := cl.cache.CacheProduct(ctx, product, cl.ttl); err != nil {
				cl.logger.Warn("Failed to cache product snapshot",
					zap.Int64("product_id", id),
					zap.Error(err))
			}
		}
	}

	return result, nil
}

// ProductBySlug serves the product-page read: the full product with its
// variants, by its URL slug
func (cl *CatalogLoader) ProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	product, err := cl.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if cl.cache != nil {
		if err := cl.cache.CacheProduct(ctx, product, cl.ttl); err != nil {
			cl.logger.Warn("Failed to cache product snapshot",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}
	return product, nil
}

// VariantStock serves the add-to-cart availability check for one
// (product, color, size) combination
func (cl *CatalogLoader) VariantStock(ctx context.Context, slug, color, size string) (int, error) {
	product, err := cl.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}

	variant, err := cl.store.GetVariant(ctx, product.ID, color, size)
	if err != nil {
		return 0, err
	}
	return variant.CountInStock, nil
}
