package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/database"
)

// HealthCheck probes one dependency. A failing critical check makes the
// service unhealthy; a failing non-critical one only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type HealthService struct {
	checks []HealthCheck
	logger *logrus.Logger

	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

// NewHealthService checks whichever connections db holds. The interaction
// store backend is critical, the Redis cache is not.
func NewHealthService(db *database.Database, reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	var checks []HealthCheck

	if db.PG != nil {
		checks = append(checks, HealthCheck{Name: "postgresql", Critical: true, Check: db.PG.Ping})
	}
	if db.Neo4j != nil {
		checks = append(checks, HealthCheck{Name: "neo4j", Critical: true, Check: db.Neo4j.VerifyConnectivity})
	}
	if db.Redis != nil {
		checks = append(checks, HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		}})
	}

	return NewHealthServiceWithChecks(checks, reg, logger)
}

func NewHealthServiceWithChecks(checks []HealthCheck, reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	factory := promauto.With(reg)

	return &HealthService{
		checks: checks,
		logger: logger,
		healthCheckStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		}, []string{"service"}),
		lastHealthCheck: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_check_timestamp",
			Help: "Timestamp of last health check",
		}, []string{"service"}),
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for _, hc := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := hc.Check(checkCtx)
		cancel()

		if err == nil {
			status.Services[hc.Name] = "healthy"
			s.UpdateHealthMetrics(hc.Name, true)
			continue
		}

		status.Services[hc.Name] = "unhealthy"
		s.UpdateHealthMetrics(hc.Name, false)
		if hc.Critical {
			allCriticalHealthy = false
			status.Critical = append(status.Critical, hc.Name)
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", hc.Name)
		} else {
			status.NonCritical = append(status.NonCritical, hc.Name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", hc.Name)
		}
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)

	return status
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
