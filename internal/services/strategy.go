package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/temcen/shoprec/pkg/models"
)

// keepEligible drops scores whose product is missing, out of stock or
// unpublished in the tenant's catalog. Input order is preserved.
func keepEligible(
	ctx context.Context,
	store InteractionStore,
	tenantID string,
	scores []models.RecommendationScore,
) ([]models.RecommendationScore, error) {
	if len(scores) == 0 {
		return scores, nil
	}

	ids := make([]int64, len(scores))
	for i, s := range scores {
		ids[i] = s.ProductID
	}

	entries, err := store.FindCatalogEntries(ctx, tenantID, models.CatalogFilter{IDs: ids}.EligibleOnly())
	if err != nil {
		return nil, fmt.Errorf("eligibility lookup failed: %w", err)
	}

	eligible := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if e.Eligible() {
			eligible[e.ID] = struct{}{}
		}
	}

	kept := scores[:0:0]
	for _, s := range scores {
		if _, ok := eligible[s.ProductID]; ok {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func truncate(scores []models.RecommendationScore, limit int) []models.RecommendationScore {
	if limit >= 0 && len(scores) > limit {
		return scores[:limit]
	}
	return scores
}

// idSet returns the set members in ascending order.
func idSet(ids map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
