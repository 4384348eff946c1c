package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"poultryledger/backend/internal/cache"
	"poultryledger/backend/internal/config"
	"poultryledger/backend/internal/httpapi"
	"poultryledger/backend/internal/lock"
	"poultryledger/backend/internal/logger"
	"poultryledger/backend/internal/scheduler"
	"poultryledger/backend/internal/service"
	"poultryledger/backend/internal/store"
	"poultryledger/backend/internal/store/memory"
	pgstore "poultryledger/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("apply schema", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second
	var snapshots cache.SnapshotCache = cache.NewMemorySnapshotCache()
	var locker lock.Locker = lock.NewLocalLocker(lockTTL)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisSnapshotCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-memory cache and local locks", zap.Error(err))
			_ = redisCache.Close()
		} else {
			snapshots = redisCache
			locker = lock.NewRedisLocker(client, lockTTL)
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: in-memory")
	}

	svc := service.New(repo, service.Options{
		Locker:      locker,
		Snapshots:   snapshots,
		SnapshotTTL: time.Duration(cfg.SnapshotTTLSeconds) * time.Second,
		Logger:      logger.Named(log, "service"),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named(log, "http"))

	jobs := scheduler.NewScheduler(cfg.ReconcileCron, svc, logger.Named(log, "scheduler"))
	if err := jobs.Start(); err != nil {
		log.Fatal("start scheduler", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("poultry ledger backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	jobs.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
