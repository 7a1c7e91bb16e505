package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
)

const (
	StorePostgres = "postgres"
	StoreNeo4j    = "neo4j"
	StoreMemory   = "memory"
)

// Database holds the connections the configured store backend needs. Only
// the backend selected by recommendation.store is connected; Redis is
// optional for the memory backend.
type Database struct {
	PG     *pgxpool.Pool
	Neo4j  neo4j.DriverWithContext
	Redis  *redis.Client
	Memory *MemoryStore
	logger *logrus.Logger
}

func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		logger: logger,
	}

	// Initialize the selected interaction store backend
	switch cfg.Recommendation.Store {
	case StorePostgres, "":
		if err := db.initPostgreSQL(cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
	case StoreNeo4j:
		if err := db.initNeo4j(cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize Neo4j: %w", err)
		}
	case StoreMemory:
		db.Memory = NewMemoryStore()
		if cfg.Recommendation.MemorySeed != "" {
			if err := db.Memory.LoadFile(cfg.Recommendation.MemorySeed); err != nil {
				return nil, err
			}
		}
		logger.WithField("seed", cfg.Recommendation.MemorySeed).Info("Using in-memory interaction store")
	default:
		return nil, fmt.Errorf("unknown recommendation store %q", cfg.Recommendation.Store)
	}

	// Initialize Redis
	if err := db.initRedis(cfg); err != nil {
		if cfg.Recommendation.Store != StoreMemory {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-process cache")
		db.Redis = nil
	}

	return db, nil
}

// Store returns the interaction store for the configured backend, behind a
// circuit breaker when enabled.
func (db *Database) Store(cfg *config.Config) Store {
	var store Store
	name := cfg.Recommendation.Store
	switch name {
	case StoreNeo4j:
		store = NewGraphStore(db.Neo4j)
	case StoreMemory:
		store = db.Memory
	default:
		name = StorePostgres
		store = NewPostgresStore(db.PG)
	}

	if !cfg.Recommendation.Breaker.Enabled || name == StoreMemory {
		return store
	}
	return NewBreakerStore(store, name+"-store", &cfg.Recommendation.Breaker, db.logger)
}

// Cache returns the Redis cache when connected, otherwise an in-process one.
func (db *Database) Cache() Cache {
	if db.Redis != nil {
		return NewRedisCache(db.Redis)
	}
	return NewMemoryCache()
}

func (db *Database) initPostgreSQL(cfg *config.Config) error {
	config, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Configure connection pool
	config.MaxConns = int32(cfg.Database.MaxConnections)
	config.MaxConnIdleTime = cfg.Database.MaxIdleTime
	config.MaxConnLifetime = cfg.Database.MaxLifetime
	config.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.PG = pool
	db.logger.Info("PostgreSQL connection established")
	return nil
}

func (db *Database) initNeo4j(cfg *config.Config) error {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4j.URL,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 10
			config.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test connection
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	db.Neo4j = driver
	db.logger.Info("Neo4j connection established")
	return nil
}

func (db *Database) initRedis(cfg *config.Config) error {
	// Initialize Redis client (strategy result cache)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.URL,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	db.Redis = client
	db.logger.Info("Redis connection established")
	return nil
}

func (db *Database) Close() error {
	var errors []error

	// Close PostgreSQL
	if db.PG != nil {
		db.PG.Close()
		db.logger.Info("PostgreSQL connection closed")
	}

	// Close Neo4j
	if db.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Neo4j.Close(ctx); err != nil {
			errors = append(errors, fmt.Errorf("failed to close Neo4j: %w", err))
		} else {
			db.logger.Info("Neo4j connection closed")
		}
	}

	// Close Redis connection
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close Redis: %w", err))
		} else {
			db.logger.Info("Redis connection closed")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing database connections: %v", errors)
	}

	return nil
}
