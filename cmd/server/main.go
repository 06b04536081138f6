package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"pgshortener/internal/cache"
	"pgshortener/internal/config"
	"pgshortener/internal/domain"
	"pgshortener/internal/postgres"
	"pgshortener/internal/repository"
	"pgshortener/internal/server"
	"pgshortener/internal/service"
	"pgshortener/internal/shortcode"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Environ())
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Run handles SIGINT/SIGTERM; ctx only stops background work on return.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize dependencies
	var (
		repo        repository.Repository
		healthCheck func(context.Context) error
	)
	switch cfg.Storage {
	case config.StorageMemory:
		repo = repository.NewMemoryRepository()
	default:
		db, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Disconnect()

		go db.Maintain(ctx, cfg.Database.MaintainInterval)

		repo = repository.NewPostgresRepository(db, cfg.Database.Table)
		healthCheck = func(ctx context.Context) error {
			_, err := postgres.Query(ctx, db, "SELECT 1", nil, postgres.FirstValue)
			return err
		}
	}

	generator, err := shortcode.New(cfg.ShortCode.Generator(), nil)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedis(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.TTL)
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, continuing without cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			opts = append(opts, service.WithCache(rc))
			logger.Info("redis cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		}
	}

	urlService := service.NewURLService(repo, generator, domain.RealClock{}, opts...)

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		BaseURL:         cfg.Server.BaseURL,
		HealthCheck:     healthCheck,
		Logger:          logger,
	}, urlService)

	logger.Info("starting server", "port", cfg.Server.Port, "storage", cfg.Storage)

	return srv.Run(ctx)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*postgres.Database, error) {
	connCfg, err := cfg.ConnectionConfig()
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDatabase(connCfg, postgres.NewPGClient(), cfg.PoolConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s:%s: %w", connCfg.Host(), connCfg.Port(), err)
	}

	logger.Info("connected to postgres",
		"host", connCfg.Host(),
		"database", connCfg.DatabaseName(),
		"pool_size", db.Pool().Size(),
	)
	return db, nil
}
