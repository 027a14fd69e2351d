package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/osm-geometry-store/internal/app"
	"github.com/mohammed-shakir/osm-geometry-store/internal/cache/geometrycache"
	"github.com/mohammed-shakir/osm-geometry-store/internal/cache/redisstore"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/config"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/health"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/observability"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/router"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/server"
	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest/kafkaconsumer"
	"github.com/mohammed-shakir/osm-geometry-store/internal/logger"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load(".env")
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "geometry-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geometry server",
		"addr", cfg.Addr,
		"version", Version,
		"driver", cfg.Database.Driver,
		"cache", cfg.Cache.Enabled,
		"ingest", cfg.Ingest.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, sqlStore, err := app.OpenStore(ctx, cfg.Database, appLog)
	if err != nil {
		appLog.Error("failed to open geometry store", "err", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	var store geometrystore.Store = sqlStore
	checks := []health.Check{{Name: "database", Ping: db.Ping}}

	if cfg.Cache.Enabled {
		rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			appLog.Error("failed to connect to redis", "addr", cfg.Cache.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		store = geometrycache.New(sqlStore, rc,
			geometrycache.WithTTL(cfg.Cache.TTL),
			geometrycache.WithOpTimeout(cfg.Cache.OpTimeout),
			geometrycache.WithLogger(appLog),
		)
		checks = append(checks, health.Check{Name: "redis", Ping: rc.Ping})
	}

	if n, err := sqlStore.Count(ctx); err == nil {
		appLog.Info("stored geometries", "rows", n)
	}

	var wg sync.WaitGroup
	if cfg.Ingest.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Ingest), appLog, &zl, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("ingest consumer stopped", "err", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.RunCleanup(ctx, store, cfg.CleanupInterval, appLog)
	}()

	handler := server.NewHandler(cfg, appLog, router.New(store, appLog), checks...)
	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		stop()
		wg.Wait()
		return 1
	}
	wg.Wait()
	appLog.Info("server stopped")
	return 0
}
