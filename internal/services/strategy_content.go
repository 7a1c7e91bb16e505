package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// ContentSimilarityStrategy scores products in the focal product's category
// by price proximity and shared name tokens.
type ContentSimilarityStrategy struct {
	store  InteractionStore
	config *config.ContentSimilarityConfig
	logger *logrus.Logger
}

func NewContentSimilarityStrategy(store InteractionStore, cfg *config.ContentSimilarityConfig, logger *logrus.Logger) *ContentSimilarityStrategy {
	return &ContentSimilarityStrategy{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

func (s *ContentSimilarityStrategy) Name() models.StrategyName {
	return models.StrategyContentSimilarity
}

func (s *ContentSimilarityStrategy) Applicable(req StrategyRequest) bool {
	return req.ProductID > 0
}

func (s *ContentSimilarityStrategy) CacheContext(req StrategyRequest) string {
	return fmt.Sprintf("product:%d", req.ProductID)
}

func (s *ContentSimilarityStrategy) Score(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error) {
	focals, err := s.store.FindCatalogEntries(ctx, req.TenantID, models.CatalogFilter{
		IDs:   []int64{req.ProductID},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load focal product: %w", err)
	}
	if len(focals) == 0 {
		return []models.RecommendationScore{}, nil
	}
	focal := focals[0]

	// Without a category every product would be a candidate
	if focal.CategoryID == nil {
		return []models.RecommendationScore{}, nil
	}

	band := s.priceBand()
	filter := models.CatalogFilter{
		CategoryID: focal.CategoryID,
		MinPrice:   models.Float64Ptr(focal.Price * (1 - band)),
		MaxPrice:   models.Float64Ptr(focal.Price * (1 + band)),
		ExcludeIDs: []int64{focal.ID},
	}.EligibleOnly()

	candidates, err := s.store.FindCatalogEntries(ctx, req.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load similar candidates: %w", err)
	}

	focalTokens := entryTokens(focal)
	priceWeight, nameWeight := s.weights()

	scores := make([]models.RecommendationScore, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == focal.ID || !c.Eligible() {
			continue
		}
		if c.CategoryID == nil || *c.CategoryID != *focal.CategoryID {
			continue
		}

		score := priceWeight*priceScore(focal.Price, c.Price) + nameWeight*tokenOverlap(focalTokens, entryTokens(c))
		scores = append(scores, models.RecommendationScore{
			ProductID:  c.ID,
			Score:      score,
			Reason:     "Similar to a product you are looking at",
			Strategy:   models.StrategyContentSimilarity,
			Confidence: clamp01(score),
		})
	}

	sortScores(scores)

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  req.TenantID,
		"product_id": req.ProductID,
		"candidates": len(candidates),
	}).Debug("Content similarity scoring completed")

	return truncate(scores, req.Limit), nil
}

func (s *ContentSimilarityStrategy) priceBand() float64 {
	if s.config.PriceBand > 0 {
		return s.config.PriceBand
	}
	return 0.3
}

func (s *ContentSimilarityStrategy) weights() (price, name float64) {
	if s.config.PriceWeight == 0 && s.config.NameWeight == 0 {
		return 0.3, 0.7
	}
	return s.config.PriceWeight, s.config.NameWeight
}

// priceScore is 1 - |diff| / focal, floored at zero. A free focal product only
// matches other free products.
func priceScore(focal, candidate float64) float64 {
	diff := math.Abs(candidate - focal)
	if focal <= 0 {
		if diff == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-diff/focal)
}

func entryTokens(p models.ProductCatalogEntry) []string {
	if len(p.Tokens) > 0 {
		return Tokenize(strings.Join(p.Tokens, " "))
	}
	return Tokenize(p.Name)
}
