package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temcen/shoprec/pkg/models"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	DB         int           `mapstructure:"db"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topics        struct {
		UserInteractions    string `mapstructure:"user_interactions"`
		UserInteractionsDLQ string `mapstructure:"user_interactions_dlq"`
	} `mapstructure:"topics"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig holds the engine tuning knobs.
type RecommendationConfig struct {
	// Store selects the interaction store adapter: postgres, neo4j or memory.
	Store             string                  `mapstructure:"store"`
	MemorySeed        string                  `mapstructure:"memory_seed"`
	Timeout           time.Duration           `mapstructure:"timeout"`
	CoOccurrence      CoOccurrenceConfig      `mapstructure:"co_occurrence"`
	ContentSimilarity ContentSimilarityConfig `mapstructure:"content_similarity"`
	Trending          TrendingConfig          `mapstructure:"trending"`
	Personalized      PersonalizedConfig      `mapstructure:"personalized"`
	Blender           BlenderConfig           `mapstructure:"blender"`
	Breaker           BreakerConfig           `mapstructure:"breaker"`
}

type CoOccurrenceConfig struct {
	Weight       float64       `mapstructure:"weight"`
	RecencyLimit int           `mapstructure:"recency_limit"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type ContentSimilarityConfig struct {
	Weight      float64       `mapstructure:"weight"`
	PriceBand   float64       `mapstructure:"price_band"`
	PriceWeight float64       `mapstructure:"price_weight"`
	NameWeight  float64       `mapstructure:"name_weight"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type TrendingConfig struct {
	Weight   float64       `mapstructure:"weight"`
	Window   time.Duration `mapstructure:"window"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PersonalizedConfig struct {
	Weight              float64       `mapstructure:"weight"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	TopCategories       int           `mapstructure:"top_categories"`
	FeaturedBonus       float64       `mapstructure:"featured_bonus"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	CandidateLimit      int           `mapstructure:"candidate_limit"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

type BlenderConfig struct {
	NormalizeWeights bool `mapstructure:"normalize_weights"`
}

type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
}

// StrategyConfigs returns the configured default strategy set, validated.
func (r RecommendationConfig) StrategyConfigs() ([]models.StrategyConfig, error) {
	configs := []models.StrategyConfig{
		{Name: models.StrategyCoOccurrence, Weight: r.CoOccurrence.Weight, RecencyLimit: r.CoOccurrence.RecencyLimit},
		{Name: models.StrategyContentSimilarity, Weight: r.ContentSimilarity.Weight},
		{Name: models.StrategyTrending, Weight: r.Trending.Weight, Window: r.Trending.Window},
		{Name: models.StrategyPersonalized, Weight: r.Personalized.Weight, SimilarityThreshold: r.Personalized.SimilarityThreshold},
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid recommendation config: %w", err)
		}
	}
	return configs, nil
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if _, err := config.Recommendation.StrategyConfigs(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/shop")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "500ms")

	// Neo4j defaults
	v.SetDefault("neo4j.url", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "shoprec-profiles")
	v.SetDefault("kafka.topics.user_interactions", "user-interactions")
	v.SetDefault("kafka.topics.user_interactions_dlq", "user-interactions-dlq")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_delay", "1s")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recommendation defaults
	v.SetDefault("recommendation.store", "postgres")
	v.SetDefault("recommendation.memory_seed", "")
	v.SetDefault("recommendation.timeout", "1500ms")

	v.SetDefault("recommendation.co_occurrence.weight", 1.0)
	v.SetDefault("recommendation.co_occurrence.recency_limit", 100)
	v.SetDefault("recommendation.co_occurrence.cache_ttl", "2h")

	v.SetDefault("recommendation.content_similarity.weight", 0.8)
	v.SetDefault("recommendation.content_similarity.price_band", 0.3)
	v.SetDefault("recommendation.content_similarity.price_weight", 0.3)
	v.SetDefault("recommendation.content_similarity.name_weight", 0.7)
	v.SetDefault("recommendation.content_similarity.cache_ttl", "1h")

	v.SetDefault("recommendation.trending.weight", 0.5)
	v.SetDefault("recommendation.trending.window", "720h")
	v.SetDefault("recommendation.trending.cache_ttl", "1h")

	v.SetDefault("recommendation.personalized.weight", 1.0)
	v.SetDefault("recommendation.personalized.similarity_threshold", 0.5)
	v.SetDefault("recommendation.personalized.top_categories", 3)
	v.SetDefault("recommendation.personalized.featured_bonus", 0.2)
	v.SetDefault("recommendation.personalized.history_limit", 200)
	v.SetDefault("recommendation.personalized.candidate_limit", 200)
	v.SetDefault("recommendation.personalized.cache_ttl", "30m")

	v.SetDefault("recommendation.blender.normalize_weights", false)

	v.SetDefault("recommendation.breaker.enabled", true)
	v.SetDefault("recommendation.breaker.min_requests", 10)
	v.SetDefault("recommendation.breaker.failure_ratio", 0.6)
	v.SetDefault("recommendation.breaker.open_timeout", "30s")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
