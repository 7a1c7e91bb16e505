package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type StrategyName string

const (
	StrategyCoOccurrence      StrategyName = "co-occurrence"
	StrategyContentSimilarity StrategyName = "content-similarity"
	StrategyTrending          StrategyName = "trending"
	StrategyPersonalized      StrategyName = "personalized"

	// StrategyBlended marks a score that more than one strategy contributed to.
	StrategyBlended StrategyName = "blended"
)

// AllStrategies lists the registered strategies in evaluation order.
var AllStrategies = []StrategyName{
	StrategyCoOccurrence,
	StrategyContentSimilarity,
	StrategyTrending,
	StrategyPersonalized,
}

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidWeight   = errors.New("strategy weight must be a non-negative number")
)

// Valid reports whether n names one of the scoring strategies.
func (n StrategyName) Valid() bool {
	for _, s := range AllStrategies {
		if s == n {
			return true
		}
	}
	return false
}

type RecommendationScore struct {
	ProductID  int64        `json:"product_id"`
	Score      float64      `json:"score"`
	Reason     string       `json:"reason"`
	Strategy   StrategyName `json:"strategy"`
	Confidence float64      `json:"confidence"`
}

// StrategyConfig selects a strategy for a combined request and sets its weight.
// Window applies to trending, SimilarityThreshold to personalized and
// RecencyLimit to co-occurrence; zero values fall back to engine defaults.
// In JSON, window is a duration string ("72h") or a number of seconds.
type StrategyConfig struct {
	Name                StrategyName  `json:"name" mapstructure:"name" validate:"required"`
	Weight              float64       `json:"weight" mapstructure:"weight" validate:"gte=0"`
	Window              time.Duration `json:"window,omitempty" mapstructure:"window"`
	SimilarityThreshold float64       `json:"similarity_threshold,omitempty" mapstructure:"similarity_threshold"`
	RecencyLimit        int           `json:"recency_limit,omitempty" mapstructure:"recency_limit"`
}

func (c *StrategyConfig) UnmarshalJSON(data []byte) error {
	type plain StrategyConfig
	aux := struct {
		*plain
		Window json.RawMessage `json:"window,omitempty"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	window, err := parseWindow(aux.Window)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", c.Name, err)
	}
	c.Window = window
	return nil
}

func (c StrategyConfig) MarshalJSON() ([]byte, error) {
	type plain StrategyConfig
	aux := struct {
		plain
		Window string `json:"window,omitempty"`
	}{plain: plain(c)}
	if c.Window != 0 {
		aux.Window = c.Window.String()
	}
	return json.Marshal(aux)
}

func parseWindow(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		if text == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(text)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", text, err)
		}
		return d, nil
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (c StrategyConfig) Validate() error {
	if !c.Name.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Name)
	}
	if c.Weight < 0 || c.Weight != c.Weight {
		return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, c.Name, c.Weight)
	}
	if c.Window < 0 {
		return fmt.Errorf("strategy %s: window must not be negative", c.Name)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("strategy %s: similarity threshold must be within [0,1]", c.Name)
	}
	if c.RecencyLimit < 0 {
		return fmt.Errorf("strategy %s: recency limit must not be negative", c.Name)
	}
	return nil
}

// DefaultStrategyConfigs returns the documented default weights.
func DefaultStrategyConfigs() []StrategyConfig {
	return []StrategyConfig{
		{Name: StrategyCoOccurrence, Weight: 1.0},
		{Name: StrategyContentSimilarity, Weight: 0.8},
		{Name: StrategyTrending, Weight: 0.5},
		{Name: StrategyPersonalized, Weight: 1.0},
	}
}

// CombinedRequest is the input of a blended recommendation call.
type CombinedRequest struct {
	UserID     string           `json:"user_id,omitempty"`
	ProductID  int64            `json:"product_id,omitempty" validate:"gte=0"`
	Limit      int              `json:"limit" validate:"gte=0,lte=50"`
	Strategies []StrategyConfig `json:"strategies,omitempty" validate:"omitempty,dive"`
}

type RecommendationResponse struct {
	TenantID        string                `json:"tenant_id"`
	Strategy        StrategyName          `json:"strategy,omitempty"`
	Recommendations []RecommendationScore `json:"recommendations"`
	GeneratedAt     time.Time             `json:"generated_at"`
}
