package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/spreadsim/internal/blob/s3"
	"github.com/alanyoungcy/spreadsim/internal/cache/redis"
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/marketdata"
	"github.com/alanyoungcy/spreadsim/internal/pricing"
	"github.com/alanyoungcy/spreadsim/internal/store/postgres"
	"github.com/alanyoungcy/spreadsim/internal/store/sqlite"
)

// Dependencies bundles every concrete collaborator the run loop needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Checkpoints domain.CheckpointStore
	Trades      domain.TradeStore
	Provider    domain.MarketDataProvider
	Pricing     domain.PricingModel
	Archiver    *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Run store ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.PoolMaxConns,
			MinConns: cfg.Store.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}

		pool := pgClient.Pool()
		deps.Checkpoints = postgres.NewCheckpointStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)

	default: // sqlite
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Checkpoints = store
		deps.Trades = store
	}

	// --- Market data ---
	fileProvider, err := marketdata.NewFileProvider(cfg.Data.Dir, cfg.Run.Symbols)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market data: %w", err)
	}
	var provider domain.MarketDataProvider = fileProvider
	if cfg.Data.MaxRetries > 1 {
		provider = marketdata.NewRetryingProvider(provider, uint(cfg.Data.MaxRetries), logger)
	}

	// --- Redis quote cache (optional accelerator) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
		cache := redis.NewQuoteCache(redisClient, ttl)
		provider = marketdata.NewCachedProvider(provider, cache, logger)
	}
	deps.Provider = provider

	// --- Pricing ---
	deps.Pricing = pricing.NewBlackScholes()

	// --- S3 archival (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Trades)
	}

	return deps, cleanup, nil
}
