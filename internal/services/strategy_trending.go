package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const defaultTrendingWindow = 30 * 24 * time.Hour

// TrendingStrategy scores products by their share of distinct orders inside
// a rolling window. It needs no user or product context.
type TrendingStrategy struct {
	store  InteractionStore
	config *config.TrendingConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewTrendingStrategy(store InteractionStore, cfg *config.TrendingConfig, logger *logrus.Logger) *TrendingStrategy {
	return &TrendingStrategy{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *TrendingStrategy) Name() models.StrategyName {
	return models.StrategyTrending
}

func (s *TrendingStrategy) Applicable(StrategyRequest) bool {
	return true
}

func (s *TrendingStrategy) CacheContext(req StrategyRequest) string {
	return fmt.Sprintf("window:%s", s.window(req))
}

func (s *TrendingStrategy) window(req StrategyRequest) time.Duration {
	if req.Config.Window > 0 {
		return req.Config.Window
	}
	if s.config.Window > 0 {
		return s.config.Window
	}
	return defaultTrendingWindow
}

func (s *TrendingStrategy) Score(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error) {
	since := s.now().Add(-s.window(req))

	records, err := s.store.FindInteractionsInWindow(ctx, req.TenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions in window: %w", err)
	}

	ordersByProduct := make(map[int64]map[int64]struct{})
	for _, r := range records {
		if !r.Status.Eligible() || r.OrderedAt.Before(since) {
			continue
		}
		orders, ok := ordersByProduct[r.ProductID]
		if !ok {
			orders = make(map[int64]struct{})
			ordersByProduct[r.ProductID] = orders
		}
		orders[r.OrderID] = struct{}{}
	}

	total := 0
	for _, orders := range ordersByProduct {
		total += len(orders)
	}
	if total == 0 {
		return []models.RecommendationScore{}, nil
	}

	scores := make([]models.RecommendationScore, 0, len(ordersByProduct))
	for productID, orders := range ordersByProduct {
		scores = append(scores, models.RecommendationScore{
			ProductID:  productID,
			Score:      float64(len(orders)) / float64(total),
			Reason:     "Trending right now",
			Strategy:   models.StrategyTrending,
			Confidence: s.calculateConfidence(len(orders)),
		})
	}

	sortScores(scores)

	scores, err = keepEligible(ctx, s.store, req.TenantID, scores)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  req.TenantID,
		"records":    len(records),
		"candidates": len(ordersByProduct),
	}).Debug("Trending scoring completed")

	return truncate(scores, req.Limit), nil
}

func (s *TrendingStrategy) calculateConfidence(orders int) float64 {
	return math.Min(float64(orders)/10.0, 1.0)
}
