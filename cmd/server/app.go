package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Tyrowin/gonotify/internal/auth"
	"github.com/Tyrowin/gonotify/internal/config"
	"github.com/Tyrowin/gonotify/internal/metrics"
	"github.com/Tyrowin/gonotify/internal/notify"
	"github.com/Tyrowin/gonotify/internal/postgres"
	"github.com/Tyrowin/gonotify/internal/relay"
	"github.com/Tyrowin/gonotify/internal/server"
	"github.com/Tyrowin/gonotify/internal/users"
)

const connectTimeout = 10 * time.Second

// app holds the running collaborators and the resources to release on exit.
type app struct {
	server  *server.Server
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	reg := metrics.NewRegistry()

	var (
		repo   users.Repository
		checks []server.HealthCheck
	)
	if cfg.DatabaseURL != "" {
		pool, err := setupDB(ctx, cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		repo = postgres.NewUserRepo(pool)
		checks = append(checks, server.HealthCheck{Name: "postgres", Check: pool.Ping})
	} else {
		slog.Warn("DATABASE_URL not set, accounts are kept in memory")
		repo = users.NewMemoryRepo(nil)
	}

	registry := notify.NewRegistry(notify.WithObserver(metrics.NewNotificationMetrics(reg)))

	var notifier relay.Notifier = relay.NewLocal(registry)
	if cfg.RedisURL != "" {
		rdb, err := setupRedis(ctx, cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		r := relay.NewRedis(rdb, registry, relay.WithMetrics(metrics.NewRelayMetrics(reg)))
		if err := r.Start(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = r.Close() })
		notifier = r
		checks = append(checks, server.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	a.server = server.NewServer(server.Deps{
		Config:       cfg,
		Users:        users.NewService(repo, nil),
		Sessions:     auth.NewAuthority([]byte(cfg.SecretKey), auth.WithDefaultTTL(cfg.SessionTTL)),
		Registry:     registry,
		Notifier:     notifier,
		Metrics:      reg,
		HealthChecks: checks,
	})
	return a, nil
}

func setupDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func setupRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return relay.NewClient(ctx, cfg.RedisURL)
}
