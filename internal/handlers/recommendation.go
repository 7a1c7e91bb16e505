package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/pkg/models"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

var errDuplicateStrategy = errors.New("strategy listed more than once")

type RecommendationHandler struct {
	engine    RecommendationEngine
	logger    *logrus.Logger
	validator *validator.Validate
}

func NewRecommendationHandler(engine RecommendationEngine, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		engine:    engine,
		logger:    logger,
		validator: validator.New(),
	}
}

// FrequentlyBoughtTogether handles GET /products/:productId/frequently-bought-together
func (h *RecommendationHandler) FrequentlyBoughtTogether(c *gin.Context) {
	productID, limit, ok := h.productRequest(c)
	if !ok {
		return
	}

	tenantID := middleware.GetTenantFromContext(c)
	scores := h.engine.GetFrequentlyBoughtTogether(c.Request.Context(), tenantID, productID, limit)
	h.respond(c, tenantID, models.StrategyCoOccurrence, scores)
}

// Similar handles GET /products/:productId/similar
func (h *RecommendationHandler) Similar(c *gin.Context) {
	productID, limit, ok := h.productRequest(c)
	if !ok {
		return
	}

	tenantID := middleware.GetTenantFromContext(c)
	scores := h.engine.GetSimilarProducts(c.Request.Context(), tenantID, productID, limit)
	h.respond(c, tenantID, models.StrategyContentSimilarity, scores)
}

// Trending handles GET /trending
func (h *RecommendationHandler) Trending(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	tenantID := middleware.GetTenantFromContext(c)
	scores := h.engine.GetTrendingProducts(c.Request.Context(), tenantID, limit)
	h.respond(c, tenantID, models.StrategyTrending, scores)
}

// Personalized handles GET /users/:userId/recommendations
func (h *RecommendationHandler) Personalized(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		badRequest(c, "INVALID_USER_ID", "User ID is required")
		return
	}

	limit, ok := h.limit(c)
	if !ok {
		return
	}

	tenantID := middleware.GetTenantFromContext(c)
	scores := h.engine.GetPersonalizedRecommendations(c.Request.Context(), tenantID, userID, limit)
	h.respond(c, tenantID, models.StrategyPersonalized, scores)
}

// Combined handles POST /recommendations
func (h *RecommendationHandler) Combined(c *gin.Context) {
	var req models.CombinedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind combined recommendation request")
		badRequest(c, "INVALID_REQUEST", "Invalid request format")
		return
	}

	if req.Limit == 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	if err := h.validator.Struct(&req); err != nil {
		badRequest(c, "VALIDATION_FAILED", err.Error())
		return
	}
	if err := validateStrategies(req.Strategies); err != nil {
		badRequest(c, "INVALID_STRATEGY", err.Error())
		return
	}
	tenantID := middleware.GetTenantFromContext(c)
	scores := h.engine.GetCombinedRecommendations(c.Request.Context(), tenantID, req)
	h.respond(c, tenantID, "", scores)
}

func validateStrategies(configs []models.StrategyConfig) error {
	seen := make(map[models.StrategyName]struct{}, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, dup := seen[cfg.Name]; dup {
			return fmt.Errorf("%w: %s", errDuplicateStrategy, cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
	}
	return nil
}

func (h *RecommendationHandler) productRequest(c *gin.Context) (int64, int, bool) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		badRequest(c, "INVALID_PRODUCT_ID", "Product ID must be a positive integer")
		return 0, 0, false
	}

	limit, ok := h.limit(c)
	return productID, limit, ok
}

// limit reads ?limit, defaulting to 10 and capping at 50.
func (h *RecommendationHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		badRequest(c, "INVALID_LIMIT", "limit must be a positive integer")
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}

func (h *RecommendationHandler) respond(c *gin.Context, tenantID string, strategy models.StrategyName, scores []models.RecommendationScore) {
	if scores == nil {
		scores = []models.RecommendationScore{}
	}

	h.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"strategy":   strategy,
		"count":      len(scores),
		"request_id": c.GetString(middleware.RequestIDKey),
	}).Debug("Recommendations served")

	c.JSON(http.StatusOK, models.RecommendationResponse{
		TenantID:        tenantID,
		Strategy:        strategy,
		Recommendations: scores,
		GeneratedAt:     time.Now().UTC(),
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
