package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyConfig_WindowJSON(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		window time.Duration
	}{
		{name: "duration string", body: `{"name":"trending","weight":1,"window":"72h"}`, window: 72 * time.Hour},
		{name: "seconds", body: `{"name":"trending","weight":1,"window":3600}`, window: time.Hour},
		{name: "absent", body: `{"name":"trending","weight":1}`, window: 0},
		{name: "null", body: `{"name":"trending","weight":1,"window":null}`, window: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg StrategyConfig
			require.NoError(t, json.Unmarshal([]byte(tt.body), &cfg))

			assert.Equal(t, StrategyTrending, cfg.Name)
			assert.Equal(t, 1.0, cfg.Weight)
			assert.Equal(t, tt.window, cfg.Window)
		})
	}

	t.Run("bad duration is rejected", func(t *testing.T) {
		var cfg StrategyConfig
		assert.Error(t, json.Unmarshal([]byte(`{"name":"trending","window":"soon"}`), &cfg))
	})

	t.Run("window is written as a duration string", func(t *testing.T) {
		data, err := json.Marshal(StrategyConfig{Name: StrategyTrending, Weight: 0.5, Window: 90 * time.Minute})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"trending","weight":0.5,"window":"1h30m0s"}`, string(data))

		var back StrategyConfig
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, 90*time.Minute, back.Window)
	})

	t.Run("nested in a combined request", func(t *testing.T) {
		var req CombinedRequest
		require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u1","strategies":[{"name":"trending","weight":1,"window":"24h"}]}`), &req))
		require.Len(t, req.Strategies, 1)
		assert.Equal(t, 24*time.Hour, req.Strategies[0].Window)
	})
}
