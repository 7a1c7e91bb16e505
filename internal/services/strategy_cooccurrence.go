package services

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// CoOccurrenceStrategy scores products that were bought in the same orders
// as the focal product.
type CoOccurrenceStrategy struct {
	store  InteractionStore
	config *config.CoOccurrenceConfig
	logger *logrus.Logger
}

func NewCoOccurrenceStrategy(store InteractionStore, cfg *config.CoOccurrenceConfig, logger *logrus.Logger) *CoOccurrenceStrategy {
	return &CoOccurrenceStrategy{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

func (s *CoOccurrenceStrategy) Name() models.StrategyName {
	return models.StrategyCoOccurrence
}

func (s *CoOccurrenceStrategy) Applicable(req StrategyRequest) bool {
	return req.ProductID > 0
}

func (s *CoOccurrenceStrategy) CacheContext(req StrategyRequest) string {
	return fmt.Sprintf("product:%d:recent:%d", req.ProductID, s.recencyLimit(req))
}

func (s *CoOccurrenceStrategy) recencyLimit(req StrategyRequest) int {
	if req.Config.RecencyLimit > 0 {
		return req.Config.RecencyLimit
	}
	if s.config.RecencyLimit > 0 {
		return s.config.RecencyLimit
	}
	return 100
}

func (s *CoOccurrenceStrategy) Score(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error) {
	orderIDs, err := s.store.FindOrdersContaining(ctx, req.TenantID, req.ProductID, s.recencyLimit(req))
	if err != nil {
		return nil, fmt.Errorf("failed to find orders containing product: %w", err)
	}
	if len(orderIDs) == 0 {
		return []models.RecommendationScore{}, nil
	}

	counts, err := s.store.CountProductCoOccurrences(ctx, req.TenantID, orderIDs, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to count co-occurrences: %w", err)
	}

	total := float64(len(orderIDs))
	scores := make([]models.RecommendationScore, 0, len(counts))
	for _, c := range counts {
		if c.ProductID == req.ProductID || c.Count <= 0 {
			continue
		}
		scores = append(scores, models.RecommendationScore{
			ProductID:  c.ProductID,
			Score:      math.Min(float64(c.Count)/total, 1.0),
			Reason:     "Frequently bought together",
			Strategy:   models.StrategyCoOccurrence,
			Confidence: s.calculateConfidence(c.Count),
		})
	}

	sortScores(scores)

	// Over-fetch so eligibility filtering rarely leaves fewer than limit
	scores = truncate(scores, req.Limit*2)

	scores, err = keepEligible(ctx, s.store, req.TenantID, scores)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  req.TenantID,
		"product_id": req.ProductID,
		"orders":     len(orderIDs),
		"results":    len(scores),
	}).Debug("Co-occurrence scoring completed")

	return truncate(scores, req.Limit), nil
}

func (s *CoOccurrenceStrategy) calculateConfidence(count int) float64 {
	// Five shared orders is treated as full support
	return math.Min(float64(count)/5.0, 1.0)
}
