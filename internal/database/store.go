package database

import (
	"context"
	"time"

	"github.com/temcen/shoprec/pkg/models"
)

// Store is the interaction store contract shared by every adapter.
type Store interface {
	FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error)
	CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error)
	FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error)
	FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error)
	FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error)
}

// Cache is a byte cache with per-key expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*GraphStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BreakerStore)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
