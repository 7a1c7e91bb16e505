package services

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/temcen/shoprec/pkg/models"
)

// StrategyResult is one strategy's contribution to a blend.
type StrategyResult struct {
	Config models.StrategyConfig
	Scores []models.RecommendationScore
	Err    error
}

// Blender merges weighted strategy outputs into one ranked list.
type Blender struct {
	normalizeWeights bool
	logger           *logrus.Logger
}

func NewBlender(normalizeWeights bool, logger *logrus.Logger) *Blender {
	return &Blender{
		normalizeWeights: normalizeWeights,
		logger:           logger,
	}
}

type blendedScore struct {
	productID     int64
	total         float64
	confidenceSum float64
	contributors  int
	reason        string
	strategy      models.StrategyName
}

// Blend never fails. Results carrying an error are logged and left out.
// Contributions are summed in the order results are given.
func (b *Blender) Blend(results []StrategyResult, limit int) []models.RecommendationScore {
	out := []models.RecommendationScore{}
	if limit <= 0 {
		return out
	}

	weights := b.weights(results)

	merged := make(map[int64]*blendedScore)
	var order []int64

	for i, result := range results {
		if result.Err != nil {
			b.logger.WithFields(logrus.Fields{
				"strategy": result.Config.Name,
			}).WithError(result.Err).Warn("Strategy omitted from blend")
			continue
		}

		seen := make(map[int64]struct{}, len(result.Scores))
		for _, s := range result.Scores {
			if _, dup := seen[s.ProductID]; dup {
				continue
			}
			seen[s.ProductID] = struct{}{}

			m, ok := merged[s.ProductID]
			if !ok {
				m = &blendedScore{
					productID: s.ProductID,
					reason:    s.Reason,
					strategy:  s.Strategy,
				}
				merged[s.ProductID] = m
				order = append(order, s.ProductID)
			}
			m.total += weights[i] * s.Score
			m.confidenceSum += s.Confidence
			m.contributors++
		}
	}

	for _, id := range order {
		m := merged[id]
		score := models.RecommendationScore{
			ProductID:  m.productID,
			Score:      m.total,
			Reason:     m.reason,
			Strategy:   m.strategy,
			Confidence: m.confidenceSum / float64(m.contributors),
		}
		if m.contributors > 1 {
			score.Reason = fmt.Sprintf("Recommended by %d strategies", m.contributors)
			score.Strategy = models.StrategyBlended
		}
		out = append(out, score)
	}

	sortScores(out)

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// weights returns each result's weight. Normalization only counts the
// strategies that produced results.
func (b *Blender) weights(results []StrategyResult) []float64 {
	w := make([]float64, len(results))
	for i, r := range results {
		if r.Err == nil {
			w[i] = r.Config.Weight
		}
	}
	if !b.normalizeWeights {
		return w
	}
	if sum := floats.Sum(w); sum > 0 {
		floats.Scale(1/sum, w)
	}
	return w
}

// sortScores orders by score descending, product id ascending.
func sortScores(scores []models.RecommendationScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ProductID < scores[j].ProductID
	})
}
