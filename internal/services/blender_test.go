package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/pkg/models"
)

func score(id int64, s float64, strategy models.StrategyName, confidence float64) models.RecommendationScore {
	return models.RecommendationScore{
		ProductID:  id,
		Score:      s,
		Reason:     string(strategy) + " reason",
		Strategy:   strategy,
		Confidence: confidence,
	}
}

func TestBlender_Blend(t *testing.T) {
	blender := NewBlender(false, testLogger())

	t.Run("weighted sum over contributing strategies", func(t *testing.T) {
		results := []StrategyResult{
			{
				Config: models.StrategyConfig{Name: models.StrategyCoOccurrence, Weight: 1.0},
				Scores: []models.RecommendationScore{
					score(2, 0.4, models.StrategyCoOccurrence, 0.8),
					score(3, 0.2, models.StrategyCoOccurrence, 0.4),
				},
			},
			{
				Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 0.5},
				Scores: []models.RecommendationScore{
					score(2, 0.3, models.StrategyTrending, 0.2),
					score(7, 0.9, models.StrategyTrending, 1.0),
				},
			},
		}

		out := blender.Blend(results, 10)

		require.Len(t, out, 3)
		assert.Equal(t, int64(2), out[0].ProductID)
		assert.InDelta(t, 1.0*0.4+0.5*0.3, out[0].Score, 1e-12)
		assert.Equal(t, "Recommended by 2 strategies", out[0].Reason)
		assert.Equal(t, models.StrategyBlended, out[0].Strategy)
		assert.InDelta(t, 0.5, out[0].Confidence, 1e-12)

		assert.Equal(t, int64(7), out[1].ProductID)
		assert.InDelta(t, 0.45, out[1].Score, 1e-12)
		assert.Equal(t, models.StrategyTrending, out[1].Strategy)
		assert.Equal(t, "trending reason", out[1].Reason)

		assert.Equal(t, int64(3), out[2].ProductID)
	})

	t.Run("failed strategies are omitted", func(t *testing.T) {
		results := []StrategyResult{
			{
				Config: models.StrategyConfig{Name: models.StrategyCoOccurrence, Weight: 1.0},
				Scores: []models.RecommendationScore{score(2, 0.4, models.StrategyCoOccurrence, 0.8)},
			},
			{
				Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 0.5},
				Scores: []models.RecommendationScore{score(2, 0.9, models.StrategyTrending, 1.0)},
				Err:    errors.New("boom"),
			},
		}

		out := blender.Blend(results, 10)

		require.Len(t, out, 1)
		assert.InDelta(t, 0.4, out[0].Score, 1e-12)
		assert.Equal(t, models.StrategyCoOccurrence, out[0].Strategy)
	})

	t.Run("all failed yields empty list", func(t *testing.T) {
		out := blender.Blend([]StrategyResult{
			{Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 1}, Err: errStrategyTimeout},
		}, 10)

		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("ties are broken by product id and output truncated", func(t *testing.T) {
		results := []StrategyResult{{
			Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 1},
			Scores: []models.RecommendationScore{
				score(9, 0.5, models.StrategyTrending, 1),
				score(4, 0.5, models.StrategyTrending, 1),
				score(6, 0.5, models.StrategyTrending, 1),
				score(1, 0.1, models.StrategyTrending, 1),
			},
		}}

		out := blender.Blend(results, 2)

		assert.Equal(t, []int64{4, 6}, productIDs(out))
	})

	t.Run("duplicates within one strategy count once", func(t *testing.T) {
		results := []StrategyResult{{
			Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 1},
			Scores: []models.RecommendationScore{
				score(4, 0.5, models.StrategyTrending, 1),
				score(4, 0.5, models.StrategyTrending, 1),
			},
		}}

		out := blender.Blend(results, 5)

		require.Len(t, out, 1)
		assert.InDelta(t, 0.5, out[0].Score, 1e-12)
		assert.Equal(t, models.StrategyTrending, out[0].Strategy)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		out := blender.Blend([]StrategyResult{{
			Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 1},
			Scores: []models.RecommendationScore{score(4, 0.5, models.StrategyTrending, 1)},
		}}, 0)

		assert.NotNil(t, out)
		assert.Empty(t, out)
	})
}

func TestBlender_NormalizeWeights(t *testing.T) {
	blender := NewBlender(true, testLogger())

	results := []StrategyResult{
		{
			Config: models.StrategyConfig{Name: models.StrategyCoOccurrence, Weight: 3},
			Scores: []models.RecommendationScore{score(1, 1.0, models.StrategyCoOccurrence, 1)},
		},
		{
			Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 1},
			Scores: []models.RecommendationScore{score(1, 1.0, models.StrategyTrending, 1)},
		},
	}

	out := blender.Blend(results, 5)

	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].Score, 1e-12)
}

func TestBlender_NormalizeWeightsIgnoresFailedStrategies(t *testing.T) {
	blender := NewBlender(true, testLogger())

	results := []StrategyResult{
		{
			Config: models.StrategyConfig{Name: models.StrategyCoOccurrence, Weight: 1},
			Scores: []models.RecommendationScore{score(1, 0.8, models.StrategyCoOccurrence, 1)},
		},
		{
			Config: models.StrategyConfig{Name: models.StrategyTrending, Weight: 3},
			Err:    errors.New("deadline exceeded"),
		},
	}

	out := blender.Blend(results, 5)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.8, out[0].Score, 1e-12)
}
