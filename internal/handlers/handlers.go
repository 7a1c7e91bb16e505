package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

// RecommendationEngine is the read side the HTTP layer depends on.
type RecommendationEngine interface {
	GetFrequentlyBoughtTogether(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore
	GetSimilarProducts(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore
	GetTrendingProducts(ctx context.Context, tenantID string, limit int) []models.RecommendationScore
	GetPersonalizedRecommendations(ctx context.Context, tenantID, userID string, limit int) []models.RecommendationScore
	GetCombinedRecommendations(ctx context.Context, tenantID string, req models.CombinedRequest) []models.RecommendationScore
}

// EventSink accepts an interaction and returns its event id.
type EventSink interface {
	Submit(ctx context.Context, event models.InteractionEvent) (string, error)
}

type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

var (
	_ RecommendationEngine = (*services.Engine)(nil)
	_ HealthChecker        = (*services.HealthService)(nil)
)

type Handlers struct {
	Health         *HealthHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
}

func New(logger *logrus.Logger, svc *services.Services, sink EventSink) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Interaction:    NewInteractionHandler(logger, sink),
		Recommendation: NewRecommendationHandler(svc.Engine, logger),
	}
}
