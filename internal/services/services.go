package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
)

type Services struct {
	Health   *HealthService
	Profiles *ProfileStore
	Metrics  *EngineMetrics
	Engine   *Engine
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	healthService := NewHealthService(db, reg, logger)
	profiles := NewProfileStore()
	metrics := NewEngineMetrics(reg)

	engine, err := NewEngine(db.Store(cfg), db.Cache(), profiles, &cfg.Recommendation, metrics, logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Health:   healthService,
		Profiles: profiles,
		Metrics:  metrics,
		Engine:   engine,
	}, nil
}
