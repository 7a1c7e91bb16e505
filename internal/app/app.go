package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/handlers"
	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/internal/validation"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	registry  *prometheus.Registry
	db        *database.Database
	services  *services.Services
	handlers  *handlers.Handlers
	router    *gin.Engine
	publisher *messaging.EventPublisher
	consumer  *messaging.EventConsumer

	cancelConsumer context.CancelFunc
	consumerDone   chan struct{}
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config:   cfg,
		logger:   setupLogger(cfg),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svc, err := services.New(cfg, app.logger, db, app.registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	// Interactions go through Kafka when enabled, otherwise straight to the engine
	var sink handlers.EventSink = messaging.NewDirectSink(svc.Engine)
	if cfg.Kafka.Enabled {
		validator, err := validation.NewSchemaValidator()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to load event schemas: %w", err)
		}
		app.publisher = messaging.NewEventPublisher(cfg, app.logger)
		app.consumer = messaging.NewEventConsumer(cfg, svc.Engine, validator, app.logger)
		sink = app.publisher
	}

	app.handlers = handlers.New(app.logger, svc, sink)
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches background workers.
func (a *App) Start() {
	if a.consumer == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelConsumer = cancel
	a.consumerDone = make(chan struct{})

	go func() {
		defer close(a.consumerDone)
		a.logger.WithField("topic", a.config.Kafka.Topics.UserInteractions).Info("Interaction consumer started")
		if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Interaction consumer stopped")
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	var errs []error
	if a.cancelConsumer != nil {
		a.cancelConsumer()
		select {
		case <-a.consumerDone:
		case <-ctx.Done():
			a.logger.Warn("Interaction consumer did not stop in time")
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.router = newRouter(a.config, a.logger, a.handlers, a.registry)
}

func newRouter(cfg *config.Config, logger *logrus.Logger, h *handlers.Handlers, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(&cfg.Security.CORS))

	// Health check endpoints (no tenant required)
	router.GET("/health", h.Health.Check)

	if cfg.Monitoring.Enabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Tenant(&cfg.Auth, logger))

		products := api.Group("/products")
		{
			products.GET("/:productId/frequently-bought-together", h.Recommendation.FrequentlyBoughtTogether)
			products.GET("/:productId/similar", h.Recommendation.Similar)
		}

		api.GET("/trending", h.Recommendation.Trending)
		api.GET("/users/:userId/recommendations", h.Recommendation.Personalized)
		api.POST("/recommendations", h.Recommendation.Combined)

		interactions := api.Group("/interactions")
		{
			interactions.POST("/view", h.Interaction.RecordView)
			interactions.POST("/purchase", h.Interaction.RecordPurchase)
			interactions.POST("/rating", h.Interaction.RecordRating)
		}
	}

	return router
}
