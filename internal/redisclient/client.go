package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bakery-orders/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss signals the caller should fall back to the database
var ErrCacheMiss = errors.New("cache miss")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(productID int64) string {
	return fmt.Sprintf("catalog:product:%d", productID)
}

// GetCachedProduct retrieves a cached product snapshot (price, discount,
// per-variant stock). Returns ErrCacheMiss when absent.
func (c *Client) GetCachedProduct(ctx context.Context, productID int64) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(productID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached product: %w", err)
	}
	return &product, nil
}

// CacheProduct stores a product snapshot with a short TTL. Staleness is
// bounded by the TTL; the paid transition invalidates eagerly.
func (c *Client) CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, ttl).Err()
}

// InvalidateProduct drops a product's cached snapshot after a stock mutation
func (c *Client) InvalidateProduct(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, productKey(productID)).Err()
}

// MarkWebhookSeen records a provider event id with SETNX. Returns true when
// this process is the first to see it. This is a fast-path hint only; the
// database compare-and-set on is_paid remains the authoritative gate.
func (c *Client) MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:seen:%s", eventID), "1", ttl).Result()
}
