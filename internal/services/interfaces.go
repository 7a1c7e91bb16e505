package services

import (
	"context"
	"errors"
	"time"

	"github.com/temcen/shoprec/pkg/models"
)

var (
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrMissingUserID    = errors.New("user id is required")
	ErrMissingProductID = errors.New("product id is required")

	// ErrNoPurchaseHistory is returned by the personalized strategy when the
	// user has nothing to personalize on; the engine answers with trending.
	ErrNoPurchaseHistory = errors.New("user has no purchase history")
)

// InteractionStore is the read-only view of catalog and order history the
// strategies depend on. All methods are tenant scoped.
type InteractionStore interface {
	FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error)
	CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error)
	FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error)
	FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error)
	FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error)
}

// Cache memoizes strategy output. A miss is reported as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StrategyRequest is what a single strategy is asked to score.
type StrategyRequest struct {
	TenantID  string
	UserID    string
	ProductID int64
	Limit     int
	Config    models.StrategyConfig
}

// Strategy produces scores for one recommendation technique.
type Strategy interface {
	Name() models.StrategyName
	// Applicable reports whether the request carries the context the strategy needs.
	Applicable(req StrategyRequest) bool
	// CacheContext identifies the request inputs that determine the output.
	CacheContext(req StrategyRequest) string
	Score(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error)
}

// preparer is implemented by strategies that need to load state before their
// cache context can be computed.
type preparer interface {
	Prepare(ctx context.Context, req StrategyRequest)
}

// RecommendationEngine is the public scoring API. The Get methods never fail;
// they answer with an empty list when nothing could be computed.
type RecommendationEngine interface {
	GetFrequentlyBoughtTogether(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore
	GetSimilarProducts(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore
	GetTrendingProducts(ctx context.Context, tenantID string, limit int) []models.RecommendationScore
	GetPersonalizedRecommendations(ctx context.Context, tenantID, userID string, limit int) []models.RecommendationScore
	GetCombinedRecommendations(ctx context.Context, tenantID string, req models.CombinedRequest) []models.RecommendationScore
	RecordView(ctx context.Context, userID string, productID int64) error
	RecordPurchase(ctx context.Context, userID string, productID int64, categoryID *int64) error
	RecordRating(ctx context.Context, userID string, productID int64, rating int) error
}

var _ RecommendationEngine = (*Engine)(nil)
