package database

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// BreakerStore guards a Store with a circuit breaker so an unreachable
// backend fails fast instead of holding every strategy until its deadline.
type BreakerStore struct {
	inner  Store
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger *logrus.Logger
}

func NewBreakerStore(inner Store, name string, cfg *config.BreakerConfig, logger *logrus.Logger) *BreakerStore {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failureRatio := cfg.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	b := &BreakerStore{inner: inner, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Interaction store circuit breaker state changed")
		},
		// A caller giving up is not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func (b *BreakerStore) FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error) {
	return execute(b, func() ([]int64, error) {
		return b.inner.FindOrdersContaining(ctx, tenantID, productID, recencyLimit)
	})
}

func (b *BreakerStore) CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error) {
	return execute(b, func() ([]models.ProductCount, error) {
		return b.inner.CountProductCoOccurrences(ctx, tenantID, orderIDs, excludeProductID)
	})
}

func (b *BreakerStore) FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error) {
	return execute(b, func() ([]models.ProductCatalogEntry, error) {
		return b.inner.FindCatalogEntries(ctx, tenantID, filter)
	})
}

func (b *BreakerStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	return execute(b, func() ([]models.InteractionRecord, error) {
		return b.inner.FindInteractionsInWindow(ctx, tenantID, since)
	})
}

func (b *BreakerStore) FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error) {
	return execute(b, func() ([]models.InteractionRecord, error) {
		return b.inner.FindUserOrderHistory(ctx, tenantID, userID, limit)
	})
}
