package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/pkg/models"
)

const testTenant = "T1"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRecommendationConfig() config.RecommendationConfig {
	return config.RecommendationConfig{
		Store:   "memory",
		Timeout: time.Second,
		CoOccurrence: config.CoOccurrenceConfig{
			Weight:       1.0,
			RecencyLimit: 100,
			CacheTTL:     2 * time.Hour,
		},
		ContentSimilarity: config.ContentSimilarityConfig{
			Weight:      0.8,
			PriceBand:   0.3,
			PriceWeight: 0.3,
			NameWeight:  0.7,
			CacheTTL:    time.Hour,
		},
		Trending: config.TrendingConfig{
			Weight:   0.5,
			Window:   30 * 24 * time.Hour,
			CacheTTL: time.Hour,
		},
		Personalized: config.PersonalizedConfig{
			Weight:              1.0,
			SimilarityThreshold: 0.5,
			TopCategories:       3,
			FeaturedBonus:       0.2,
			HistoryLimit:        200,
			CandidateLimit:      200,
			CacheTTL:            30 * time.Minute,
		},
	}
}

type testEngine struct {
	*Engine
	store    *database.MemoryStore
	cache    *database.MemoryCache
	profiles *ProfileStore
	metrics  *EngineMetrics
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := database.NewMemoryStore()
	te := newTestEngineWith(t, store, database.NewMemoryCache(), testRecommendationConfig())
	te.store = store
	return te
}

func newTestEngineWith(t *testing.T, store InteractionStore, cache Cache, cfg config.RecommendationConfig) *testEngine {
	t.Helper()
	profiles := NewProfileStore()
	metrics := NewEngineMetrics(prometheus.NewRegistry())

	engine, err := NewEngine(store, cache, profiles, &cfg, metrics, testLogger())
	require.NoError(t, err)

	te := &testEngine{Engine: engine, profiles: profiles, metrics: metrics}
	if mc, ok := cache.(*database.MemoryCache); ok {
		te.cache = mc
	}
	return te
}

func product(id int64, name string, category int64, price float64) models.ProductCatalogEntry {
	p := models.ProductCatalogEntry{
		ID:        id,
		Name:      name,
		Slug:      name,
		Price:     price,
		Stock:     10,
		Published: true,
	}
	if category != 0 {
		p.CategoryID = models.Int64Ptr(category)
	}
	return p
}

func order(id int64, user string, status models.OrderStatus, age time.Duration, productIDs ...int64) database.MemoryOrder {
	lines := make([]database.OrderLine, len(productIDs))
	for i, p := range productIDs {
		lines[i] = database.OrderLine{ProductID: p, Quantity: 1}
	}
	return database.MemoryOrder{
		ID:        id,
		UserID:    user,
		Status:    status,
		OrderedAt: time.Now().Add(-age),
		Lines:     lines,
	}
}

// seedCoOccurrence: product 1 is in 10 completed orders; 2 shares 4 of them,
// 3 shares 2, 4 (out of stock) shares 5 and 5 (unpublished) shares 3.
// Cancelled and refunded orders pair 1 with 6.
func seedCoOccurrence(store *database.MemoryStore) {
	outOfStock := product(4, "Lamp", 1, 20)
	outOfStock.Stock = 0
	unpublished := product(5, "Vase", 1, 20)
	unpublished.Published = false

	store.AddProducts(testTenant,
		product(1, "Coffee Maker", 1, 50),
		product(2, "Coffee Filters", 1, 5),
		product(3, "Coffee Beans", 1, 12),
		outOfStock,
		unpublished,
		product(6, "Descaler", 1, 8),
	)

	for i := int64(1); i <= 10; i++ {
		items := []int64{1}
		if i <= 4 {
			items = append(items, 2)
		}
		if i <= 2 {
			items = append(items, 3)
		}
		if i <= 5 {
			items = append(items, 4)
		}
		if i <= 3 {
			items = append(items, 5)
		}
		store.AddOrders(testTenant, order(i, "buyer", models.OrderStatusCompleted, time.Duration(i)*time.Hour, items...))
	}
	store.AddOrders(testTenant,
		order(90, "buyer", models.OrderStatusCancelled, time.Hour, 1, 6),
		order(91, "buyer", models.OrderStatusRefunded, time.Hour, 1, 6),
	)
}

// MockInteractionStore is a testify mock of InteractionStore.
type MockInteractionStore struct {
	mock.Mock
}

func (m *MockInteractionStore) FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error) {
	args := m.Called(ctx, tenantID, productID, recencyLimit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockInteractionStore) CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error) {
	args := m.Called(ctx, tenantID, orderIDs, excludeProductID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductCount), args.Error(1)
}

func (m *MockInteractionStore) FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductCatalogEntry), args.Error(1)
}

func (m *MockInteractionStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InteractionRecord), args.Error(1)
}

func (m *MockInteractionStore) FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error) {
	args := m.Called(ctx, tenantID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InteractionRecord), args.Error(1)
}

// blockingTrendingStore delays window queries until the caller gives up.
type blockingTrendingStore struct {
	*database.MemoryStore
}

func (s blockingTrendingStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowTrendingStore answers window queries after delay unless ctx ends first.
type slowTrendingStore struct {
	*database.MemoryStore
	delay time.Duration
}

func (s slowTrendingStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	select {
	case <-time.After(s.delay):
		return s.MemoryStore.FindInteractionsInWindow(ctx, tenantID, since)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failingCache fails every read and write.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errCacheDown
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}

var errCacheDown = errors.New("cache unavailable")
