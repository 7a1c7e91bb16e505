package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const defaultEngineTimeout = 1500 * time.Millisecond

var errStrategyTimeout = errors.New("strategy did not finish before the deadline")

type registeredStrategy struct {
	strategy Strategy
	ttl      time.Duration
}

// Engine fans requests out to the registered strategies, memoizes their
// output in the cache and blends the results.
type Engine struct {
	cache      Cache
	profiles   *ProfileStore
	blender    *Blender
	strategies map[models.StrategyName]registeredStrategy
	defaults   []models.StrategyConfig
	timeout    time.Duration
	metrics    *EngineMetrics
	group      singleflight.Group
	logger     *logrus.Logger
}

func NewEngine(
	store InteractionStore,
	cache Cache,
	profiles *ProfileStore,
	cfg *config.RecommendationConfig,
	metrics *EngineMetrics,
	logger *logrus.Logger,
) (*Engine, error) {
	defaults, err := cfg.StrategyConfigs()
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEngineTimeout
	}

	e := &Engine{
		cache:    cache,
		profiles: profiles,
		blender:  NewBlender(cfg.Blender.NormalizeWeights, logger),
		defaults: defaults,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}

	e.strategies = map[models.StrategyName]registeredStrategy{
		models.StrategyCoOccurrence: {
			strategy: NewCoOccurrenceStrategy(store, &cfg.CoOccurrence, logger),
			ttl:      ttlOrDefault(cfg.CoOccurrence.CacheTTL, 2*time.Hour),
		},
		models.StrategyContentSimilarity: {
			strategy: NewContentSimilarityStrategy(store, &cfg.ContentSimilarity, logger),
			ttl:      ttlOrDefault(cfg.ContentSimilarity.CacheTTL, time.Hour),
		},
		models.StrategyTrending: {
			strategy: NewTrendingStrategy(store, &cfg.Trending, logger),
			ttl:      ttlOrDefault(cfg.Trending.CacheTTL, time.Hour),
		},
		models.StrategyPersonalized: {
			strategy: NewPersonalizedStrategy(store, profiles, &cfg.Personalized, logger),
			ttl:      ttlOrDefault(cfg.Personalized.CacheTTL, 30*time.Minute),
		},
	}

	return e, nil
}

func ttlOrDefault(ttl, fallback time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return fallback
}

func (e *Engine) defaultConfig(name models.StrategyName) models.StrategyConfig {
	for _, c := range e.defaults {
		if c.Name == name {
			return c
		}
	}
	return models.StrategyConfig{Name: name, Weight: 1.0}
}

func (e *Engine) GetFrequentlyBoughtTogether(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore {
	return e.single(ctx, "frequently_bought_together", StrategyRequest{
		TenantID:  tenantID,
		ProductID: productID,
		Limit:     limit,
		Config:    e.defaultConfig(models.StrategyCoOccurrence),
	})
}

func (e *Engine) GetSimilarProducts(ctx context.Context, tenantID string, productID int64, limit int) []models.RecommendationScore {
	return e.single(ctx, "similar_products", StrategyRequest{
		TenantID:  tenantID,
		ProductID: productID,
		Limit:     limit,
		Config:    e.defaultConfig(models.StrategyContentSimilarity),
	})
}

func (e *Engine) GetTrendingProducts(ctx context.Context, tenantID string, limit int) []models.RecommendationScore {
	return e.single(ctx, "trending", StrategyRequest{
		TenantID: tenantID,
		Limit:    limit,
		Config:   e.defaultConfig(models.StrategyTrending),
	})
}

// GetPersonalizedRecommendations answers with the trending list for users
// without purchase history.
func (e *Engine) GetPersonalizedRecommendations(ctx context.Context, tenantID, userID string, limit int) []models.RecommendationScore {
	return e.single(ctx, "personalized", StrategyRequest{
		TenantID: tenantID,
		UserID:   userID,
		Limit:    limit,
		Config:   e.defaultConfig(models.StrategyPersonalized),
	})
}

func (e *Engine) single(ctx context.Context, operation string, req StrategyRequest) []models.RecommendationScore {
	out := []models.RecommendationScore{}
	reg := e.strategies[req.Config.Name]
	if req.Limit <= 0 || !reg.strategy.Applicable(req) {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	scores, err := e.evaluate(ctx, req)
	if err != nil {
		e.metrics.strategyFailed(req.Config.Name, "error")
		e.logger.WithFields(logrus.Fields{
			"tenant_id": req.TenantID,
			"strategy":  req.Config.Name,
			"operation": operation,
		}).WithError(err).Warn("Strategy failed, returning empty recommendations")
		return out
	}

	out = append(out, excludeProduct(scores, req.ProductID)...)
	out = truncate(out, req.Limit)
	e.metrics.observeResult(operation, len(out))
	return out
}

// GetCombinedRecommendations runs every applicable strategy concurrently and
// blends what finished before the deadline.
func (e *Engine) GetCombinedRecommendations(ctx context.Context, tenantID string, req models.CombinedRequest) []models.RecommendationScore {
	startTime := time.Now()
	if req.Limit <= 0 {
		return []models.RecommendationScore{}
	}

	var jobs []StrategyRequest
	for _, cfg := range e.resolveConfigs(req.Strategies) {
		sreq := StrategyRequest{
			TenantID:  tenantID,
			UserID:    req.UserID,
			ProductID: req.ProductID,
			Limit:     req.Limit,
			Config:    cfg,
		}
		// The focal product may take a slot in lists not keyed by it
		if req.ProductID > 0 && !productScoped(cfg.Name) {
			sreq.Limit++
		}
		if !e.strategies[cfg.Name].strategy.Applicable(sreq) {
			continue
		}
		jobs = append(jobs, sreq)
	}
	if len(jobs) == 0 {
		return []models.RecommendationScore{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		index  int
		scores []models.RecommendationScore
		err    error
	}

	// Buffered so strategies finishing after the deadline never block
	outcomes := make(chan outcome, len(jobs))
	for i, job := range jobs {
		go func(i int, job StrategyRequest) {
			scores, err := e.evaluate(ctx, job)
			outcomes <- outcome{index: i, scores: scores, err: err}
		}(i, job)
	}

	results := make([]StrategyResult, len(jobs))
	for i, job := range jobs {
		results[i] = StrategyResult{Config: job.Config, Err: errStrategyTimeout}
	}

	pending := len(jobs)
collect:
	for pending > 0 {
		select {
		case o := <-outcomes:
			pending--
			results[o.index].Err = o.err
			if o.err == nil {
				results[o.index].Scores = excludeProduct(o.scores, req.ProductID)
			}
		case <-ctx.Done():
			break collect
		}
	}

	for _, r := range results {
		switch {
		case errors.Is(r.Err, errStrategyTimeout):
			e.metrics.strategyFailed(r.Config.Name, "timeout")
		case r.Err != nil:
			e.metrics.strategyFailed(r.Config.Name, "error")
		}
		if r.Err != nil {
			e.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"user_id":   req.UserID,
				"strategy":  r.Config.Name,
			}).WithError(r.Err).Warn("Strategy contributed nothing to combined recommendations")
		}
	}

	blended := e.blender.Blend(results, req.Limit)
	e.metrics.observeResult("combined", len(blended))

	e.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"user_id":    req.UserID,
		"product_id": req.ProductID,
		"strategies": len(jobs),
		"results":    len(blended),
		"latency":    time.Since(startTime),
	}).Debug("Combined recommendations generated")

	return blended
}

// resolveConfigs validates the requested strategy set, dropping invalid and
// duplicate entries. An empty request selects the configured defaults.
func (e *Engine) resolveConfigs(requested []models.StrategyConfig) []models.StrategyConfig {
	if len(requested) == 0 {
		return e.defaults
	}

	seen := make(map[models.StrategyName]struct{}, len(requested))
	configs := make([]models.StrategyConfig, 0, len(requested))
	for _, cfg := range requested {
		if err := cfg.Validate(); err != nil {
			e.logger.WithError(err).Warn("Skipping invalid strategy config")
			continue
		}
		if _, dup := seen[cfg.Name]; dup {
			continue
		}
		seen[cfg.Name] = struct{}{}
		configs = append(configs, cfg)
	}
	return configs
}

// evaluate runs one strategy through the cache. Concurrent misses on the same
// key share a single computation.
func (e *Engine) evaluate(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error) {
	name := req.Config.Name
	reg, ok := e.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, name)
	}

	if p, ok := reg.strategy.(preparer); ok {
		p.Prepare(ctx, req)
	}

	key := cacheKey(name, req.TenantID, reg.strategy.CacheContext(req), req.Limit)
	if cached, ok := e.getCachedResults(ctx, name, key); ok {
		return cached, nil
	}

	// The computation is shared by every caller waiting on key, so it runs
	// detached from any one caller; each caller still gives up on its own ctx.
	ch := e.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		start := time.Now()
		scores, err := reg.strategy.Score(sharedCtx, req)
		e.metrics.observeStrategy(name, time.Since(start))
		if err != nil {
			return nil, err
		}
		e.cacheResults(sharedCtx, name, key, scores, reg.ttl)
		return scores, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err

	if errors.Is(err, ErrNoPurchaseHistory) {
		return e.evaluate(ctx, StrategyRequest{
			TenantID: req.TenantID,
			Limit:    req.Limit,
			Config:   e.defaultConfig(models.StrategyTrending),
		})
	}
	if err != nil {
		return nil, err
	}

	shared := v.([]models.RecommendationScore)
	return append([]models.RecommendationScore(nil), shared...), nil
}

func cacheKey(name models.StrategyName, tenantID, contextID string, limit int) string {
	return fmt.Sprintf("rec:%s:%s:%s:%d", name, tenantID, contextID, limit)
}

// Cache helper methods

func (e *Engine) getCachedResults(ctx context.Context, name models.StrategyName, key string) ([]models.RecommendationScore, bool) {
	data, found, err := e.cache.Get(ctx, key)
	if err != nil {
		e.metrics.cacheResult(name, "error")
		e.logger.WithFields(logrus.Fields{
			"strategy": name,
			"key":      key,
		}).WithError(err).Debug("Cache read failed, treating as miss")
		return nil, false
	}
	if !found {
		e.metrics.cacheResult(name, "miss")
		return nil, false
	}

	var scores []models.RecommendationScore
	if err := json.Unmarshal(data, &scores); err != nil {
		e.metrics.cacheResult(name, "error")
		return nil, false
	}

	e.metrics.cacheResult(name, "hit")
	if scores == nil {
		scores = []models.RecommendationScore{}
	}
	return scores, true
}

func (e *Engine) cacheResults(ctx context.Context, name models.StrategyName, key string, scores []models.RecommendationScore, ttl time.Duration) {
	if scores == nil {
		scores = []models.RecommendationScore{}
	}
	data, err := json.Marshal(scores)
	if err == nil {
		err = e.cache.Set(ctx, key, data, ttl)
	}
	if err != nil {
		e.metrics.cacheWriteFailed(name)
		e.logger.WithFields(logrus.Fields{
			"strategy": name,
			"key":      key,
		}).WithError(err).Warn("Failed to cache strategy results")
	}
}

// productScoped reports whether the strategy scores relative to the focal
// product and therefore never returns it.
func productScoped(name models.StrategyName) bool {
	return name == models.StrategyCoOccurrence || name == models.StrategyContentSimilarity
}

func excludeProduct(scores []models.RecommendationScore, productID int64) []models.RecommendationScore {
	out := make([]models.RecommendationScore, 0, len(scores))
	for _, s := range scores {
		if productID > 0 && s.ProductID == productID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) RecordView(ctx context.Context, userID string, productID int64) error {
	if err := e.profiles.RecordView(userID, productID); err != nil {
		return err
	}
	e.metrics.profileEvent(models.InteractionView)
	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
	}).Debug("View recorded")
	return nil
}

func (e *Engine) RecordPurchase(ctx context.Context, userID string, productID int64, categoryID *int64) error {
	if err := e.profiles.RecordPurchase(userID, productID, categoryID); err != nil {
		return err
	}
	e.metrics.profileEvent(models.InteractionPurchase)
	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
	}).Debug("Purchase recorded")
	return nil
}

func (e *Engine) RecordRating(ctx context.Context, userID string, productID int64, rating int) error {
	if err := e.profiles.RecordRating(userID, productID, rating); err != nil {
		return err
	}
	e.metrics.profileEvent(models.InteractionRating)
	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
		"rating":     rating,
	}).Debug("Rating recorded")
	return nil
}
