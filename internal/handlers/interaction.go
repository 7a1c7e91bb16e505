package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

type InteractionHandler struct {
	logger    *logrus.Logger
	sink      EventSink
	validator *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, sink EventSink) *InteractionHandler {
	return &InteractionHandler{
		logger:    logger,
		sink:      sink,
		validator: validator.New(),
	}
}

// RecordView handles POST /interactions/view
func (h *InteractionHandler) RecordView(c *gin.Context) {
	var req models.ViewRequest
	if !h.bind(c, &req) {
		return
	}

	h.submit(c, models.InteractionEvent{
		Type:      models.InteractionView,
		UserID:    req.UserID,
		ProductID: req.ProductID,
	})
}

// RecordPurchase handles POST /interactions/purchase
func (h *InteractionHandler) RecordPurchase(c *gin.Context) {
	var req models.PurchaseRequest
	if !h.bind(c, &req) {
		return
	}

	h.submit(c, models.InteractionEvent{
		Type:       models.InteractionPurchase,
		UserID:     req.UserID,
		ProductID:  req.ProductID,
		CategoryID: req.CategoryID,
	})
}

// RecordRating handles POST /interactions/rating
func (h *InteractionHandler) RecordRating(c *gin.Context) {
	var req models.RatingRequest
	if !h.bind(c, &req) {
		return
	}

	h.submit(c, models.InteractionEvent{
		Type:      models.InteractionRating,
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
	})
}

func (h *InteractionHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind interaction request")
		badRequest(c, "INVALID_REQUEST", "Invalid request format")
		return false
	}

	if err := h.validator.Struct(req); err != nil {
		badRequest(c, "VALIDATION_FAILED", err.Error())
		return false
	}
	return true
}

func (h *InteractionHandler) submit(c *gin.Context, event models.InteractionEvent) {
	eventID, err := h.sink.Submit(c.Request.Context(), event)
	if err != nil {
		if isRejection(err) {
			badRequest(c, "INVALID_INTERACTION", err.Error())
			return
		}

		h.logger.WithFields(logrus.Fields{
			"type":       event.Type,
			"user_id":    event.UserID,
			"product_id": event.ProductID,
			"tenant_id":  middleware.GetTenantFromContext(c),
		}).WithError(err).Error("Failed to record interaction")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERACTION_FAILED",
				"message": "Failed to record interaction",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"event_id": eventID,
			"type":     event.Type,
		},
		"message": "Interaction accepted",
	})
}

func isRejection(err error) bool {
	return errors.Is(err, services.ErrInvalidRating) ||
		errors.Is(err, services.ErrMissingUserID) ||
		errors.Is(err, services.ErrMissingProductID) ||
		errors.Is(err, messaging.ErrUnknownEventType)
}
