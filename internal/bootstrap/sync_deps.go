// Package bootstrap wires the application together.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mailsync_server/adapter/out/mongodb"
	"mailsync_server/adapter/out/persistence"
	"mailsync_server/adapter/out/provider"
	"mailsync_server/config"
	"mailsync_server/core/port/out"
	"mailsync_server/core/service/sync"
	"mailsync_server/infra/database"
	"mailsync_server/pkg/logger"
)

// Dependencies holds every wired component.
type Dependencies struct {
	Config *config.Config

	// Datastores
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Outbound adapters
	AccountRepo     out.AccountRepository
	ThreadRepo      out.ThreadRepository
	SyncStateRepo   out.SyncStateRepository
	SyncJobRepo     out.SyncJobRepository
	Store           out.SyncStore
	BodyStore       out.BodyStore
	ProviderFactory *provider.Factory

	// Services
	SyncService *sync.Service
}

// NewDependencies connects the datastores and wires the adapters and
// services. The returned cleanup closes every connection.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL (pgxpool for health, sqlx for the adapters)
	logger.Debug("Connecting to PostgreSQL...")
	pool, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.DB = pool
	cleanups = append(cleanups, pool.Close)

	sqlDB, err := database.NewSqlx(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { _ = sqlDB.Close() })
	logger.Info("PostgreSQL connected")

	// Redis is optional: without it webhook idempotency degrades gracefully.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis connection failed, continuing without it")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { _ = redisClient.Close() })
			logger.Info("Redis connected")
		}
	}

	// MongoDB is optional: without it HTML bodies are not mirrored.
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("MongoDB connection failed, continuing without body store")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mongoClient.Disconnect(ctx)
			})

			bodyAdapter := mongodb.NewBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := bodyAdapter.EnsureIndexes(ctx); err != nil {
				logger.WithError(err).Warn("MongoDB index creation failed")
			}
			cancel()
			deps.BodyStore = bodyAdapter
			logger.Info("MongoDB connected")
		}
	}

	// Relational adapters
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.ThreadRepo = persistence.NewThreadAdapter(sqlDB)
	deps.SyncStateRepo = persistence.NewSyncStateAdapter(sqlDB)
	deps.SyncJobRepo = persistence.NewSyncJobAdapter(sqlDB)
	deps.Store = persistence.NewStoreAdapter(sqlDB, cfg.Sync)

	// Provider factory
	deps.ProviderFactory = provider.NewFactory(cfg, deps.AccountRepo)

	// Sync engine
	deps.SyncService = sync.NewService(
		cfg.Sync,
		deps.AccountRepo,
		deps.ThreadRepo,
		deps.SyncStateRepo,
		deps.SyncJobRepo,
		deps.Store,
		deps.BodyStore,
		deps.ProviderFactory,
	)

	return deps, cleanup, nil
}
