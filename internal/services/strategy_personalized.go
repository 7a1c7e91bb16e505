package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const (
	reasonCategoryAffinity = "Popular in categories you shop"
	reasonSimilarUsers     = "Customers with similar purchases bought this"
	reasonPurchaseHistory  = "Based on your purchase history"
)

// PersonalizedStrategy combines category affinity with user-user
// collaborative filtering over purchase sets.
type PersonalizedStrategy struct {
	store    InteractionStore
	profiles *ProfileStore
	config   *config.PersonalizedConfig
	logger   *logrus.Logger

	mu sync.Mutex
	// tenant/user pairs whose stored history was empty, with when it was seen
	emptyHistory map[string]time.Time
	now          func() time.Time
}

func NewPersonalizedStrategy(
	store InteractionStore,
	profiles *ProfileStore,
	cfg *config.PersonalizedConfig,
	logger *logrus.Logger,
) *PersonalizedStrategy {
	return &PersonalizedStrategy{
		store:        store,
		profiles:     profiles,
		config:       cfg,
		logger:       logger,
		emptyHistory: make(map[string]time.Time),
		now:          time.Now,
	}
}

func (s *PersonalizedStrategy) Name() models.StrategyName {
	return models.StrategyPersonalized
}

func (s *PersonalizedStrategy) Applicable(req StrategyRequest) bool {
	return req.UserID != ""
}

// CacheContext embeds the profile version so any recorded event for the user
// moves them to a fresh key.
func (s *PersonalizedStrategy) CacheContext(req StrategyRequest) string {
	var version uint64
	if p, ok := s.profiles.Get(req.UserID); ok {
		version = p.Version
	}
	return fmt.Sprintf("user:%s:v%d:sim:%g", req.UserID, version, s.threshold(req))
}

// Prepare hydrates the profile from stored order history the first time the
// user is scored. Failures are logged and retried on the next request; an
// empty history is not looked up again until the cache TTL has passed.
func (s *PersonalizedStrategy) Prepare(ctx context.Context, req StrategyRequest) {
	if req.UserID == "" || s.profiles.Hydrated(req.UserID) {
		return
	}

	key := req.TenantID + "/" + req.UserID
	if s.recentlyEmpty(key) {
		return
	}

	history, err := s.store.FindUserOrderHistory(ctx, req.TenantID, req.UserID, s.historyLimit())
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"tenant_id": req.TenantID,
			"user_id":   req.UserID,
		}).WithError(err).Warn("Failed to hydrate user profile")
		return
	}

	if len(history) == 0 {
		s.mu.Lock()
		s.emptyHistory[key] = s.now()
		s.mu.Unlock()
		return
	}
	s.profiles.Hydrate(req.UserID, history)
}

func (s *PersonalizedStrategy) recentlyEmpty(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.emptyHistory[key]
	if !ok {
		return false
	}
	if s.now().Sub(seen) < s.emptyHistoryTTL() {
		return true
	}
	delete(s.emptyHistory, key)
	return false
}

func (s *PersonalizedStrategy) emptyHistoryTTL() time.Duration {
	if s.config.CacheTTL > 0 {
		return s.config.CacheTTL
	}
	return 30 * time.Minute
}

func (s *PersonalizedStrategy) Score(ctx context.Context, req StrategyRequest) ([]models.RecommendationScore, error) {
	profile, ok := s.profiles.Get(req.UserID)
	if !ok || len(profile.Purchased) == 0 || profile.PurchaseCount == 0 {
		return nil, ErrNoPurchaseHistory
	}

	affinity, err := s.categoryAffinity(ctx, req, profile)
	if err != nil {
		return nil, err
	}

	collaborative, err := s.collaborativeFiltering(ctx, req, profile)
	if err != nil {
		return nil, err
	}

	combined := make(map[int64]*models.RecommendationScore, len(affinity)+len(collaborative))
	for id, score := range affinity {
		combined[id] = &models.RecommendationScore{
			ProductID: id,
			Score:     score,
			Reason:    reasonCategoryAffinity,
		}
	}
	for id, score := range collaborative {
		if existing, ok := combined[id]; ok {
			existing.Score += score
			existing.Reason = reasonPurchaseHistory
			continue
		}
		combined[id] = &models.RecommendationScore{
			ProductID: id,
			Score:     score,
			Reason:    reasonSimilarUsers,
		}
	}

	scores := make([]models.RecommendationScore, 0, len(combined))
	for _, c := range combined {
		c.Strategy = models.StrategyPersonalized
		c.Confidence = s.calculateConfidence(c.Score)
		scores = append(scores, *c)
	}

	sortScores(scores)

	s.logger.WithFields(logrus.Fields{
		"tenant_id":     req.TenantID,
		"user_id":       req.UserID,
		"affinity":      len(affinity),
		"collaborative": len(collaborative),
	}).Debug("Personalized scoring completed")

	return truncate(scores, req.Limit), nil
}

// categoryAffinity scores unpurchased eligible products in the user's top
// categories by that category's share of the user's purchases.
func (s *PersonalizedStrategy) categoryAffinity(
	ctx context.Context,
	req StrategyRequest,
	profile models.UserProfile,
) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	purchased := idSet(profile.Purchased)

	for _, categoryID := range topCategories(profile.CategoryCounts, s.topCategories()) {
		entries, err := s.store.FindCatalogEntries(ctx, req.TenantID, models.CatalogFilter{
			CategoryID: models.Int64Ptr(categoryID),
			ExcludeIDs: purchased,
			Limit:      s.config.CandidateLimit,
		}.EligibleOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to load category %d candidates: %w", categoryID, err)
		}

		share := float64(profile.CategoryCounts[categoryID]) / float64(profile.PurchaseCount)
		for _, e := range entries {
			if !e.Eligible() {
				continue
			}
			if _, bought := profile.Purchased[e.ID]; bought {
				continue
			}
			score := share
			if e.Featured {
				score += s.config.FeaturedBonus
			}
			scores[e.ID] += score
		}
	}

	return scores, nil
}

// collaborativeFiltering surfaces products bought by users whose purchase sets
// overlap the target's by more than the similarity threshold.
func (s *PersonalizedStrategy) collaborativeFiltering(
	ctx context.Context,
	req StrategyRequest,
	profile models.UserProfile,
) (map[int64]float64, error) {
	threshold := s.threshold(req)
	raw := make(map[int64]float64)

	s.profiles.Range(func(other models.UserProfile) bool {
		if other.UserID == profile.UserID || len(other.Purchased) == 0 {
			return true
		}
		similarity := jaccard(profile.Purchased, other.Purchased)
		if similarity <= threshold {
			return true
		}
		for id := range other.Purchased {
			if _, bought := profile.Purchased[id]; bought {
				continue
			}
			if _, viewed := profile.Viewed[id]; viewed {
				continue
			}
			raw[id] += similarity
		}
		return true
	})

	if len(raw) == 0 {
		return raw, nil
	}

	// Profiles are not tenant scoped; the catalog lookup drops foreign products
	candidates := make([]models.RecommendationScore, 0, len(raw))
	for id, score := range raw {
		candidates = append(candidates, models.RecommendationScore{ProductID: id, Score: score})
	}
	sortScores(candidates)

	kept, err := keepEligible(ctx, s.store, req.TenantID, candidates)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(kept))
	for _, k := range kept {
		scores[k.ProductID] = k.Score
	}
	return scores, nil
}

func (s *PersonalizedStrategy) threshold(req StrategyRequest) float64 {
	if req.Config.SimilarityThreshold > 0 {
		return req.Config.SimilarityThreshold
	}
	return s.config.SimilarityThreshold
}

func (s *PersonalizedStrategy) topCategories() int {
	if s.config.TopCategories > 0 {
		return s.config.TopCategories
	}
	return 3
}

func (s *PersonalizedStrategy) historyLimit() int {
	if s.config.HistoryLimit > 0 {
		return s.config.HistoryLimit
	}
	return 200
}

func (s *PersonalizedStrategy) calculateConfidence(score float64) float64 {
	return math.Min(score, 1.0)
}

// topCategories returns up to n category ids by descending count, ties by id.
func topCategories(counts map[int64]int, n int) []int64 {
	ids := make([]int64, 0, len(counts))
	for id, c := range counts {
		if c > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// jaccard is |a ∩ b| / |a ∪ b|; two empty sets have similarity 0.
func jaccard(a, b map[int64]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for id := range small {
		if _, ok := large[id]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}
