package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"videopipe/internal/cache"
	"videopipe/internal/config"
	"videopipe/internal/database"
	"videopipe/internal/dispatcher"
	"videopipe/internal/logger"
	"videopipe/internal/maintenance"
	"videopipe/internal/mediatool"
	"videopipe/internal/objectstore"
	"videopipe/internal/observability"
	"videopipe/internal/processor"
	"videopipe/internal/queue"
	"videopipe/internal/repositories"
)

func main() {
	cfg := config.Load()

	logger.Init("videopipe-worker", cfg.Environment, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.OTELServiceName)
	if err != nil {
		slog.Default().Warn("failed to initialize OpenTelemetry", "error", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				slog.Default().Error("error shutting down OpenTelemetry", "error", err)
			}
		}()
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	defer db.Close()
	slog.Default().Info("connected to PostgreSQL")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL:", err)
	}
	rdb := redis.NewClient(redisOpts)
	sharedCache := cache.New(rdb)
	probeCache := cache.NewProbeCache(sharedCache)
	resultCache := cache.NewResultCache(sharedCache)
	slog.Default().Info("connected to Redis")

	store := objectstore.New(objectstore.Config{
		Endpoint:     cfg.ObjectStoreEndpoint,
		Region:       cfg.ObjectStoreRegion,
		Bucket:       cfg.ObjectStoreBucket,
		AccessKey:    cfg.ObjectStoreAccessKey,
		SecretKey:    cfg.ObjectStoreSecretKey,
		UsePathStyle: cfg.ObjectStoreUsePathStyle,
	})

	assetRepo := repositories.NewAssetRepository(db, probeCache)
	jobRepo := repositories.NewJobRepository(db)

	tool := mediatool.NewBuilder(cfg.MediaToolBinary, cfg.ProbeToolBinary, cfg.JobTimeout, cfg.JobSoftTimeout, map[mediatool.HWAccel]int{
		mediatool.HWAccelSoftware: cfg.WorkerCount,
		mediatool.HWAccelNVENC:    2,
		mediatool.HWAccelQSV:      2,
		mediatool.HWAccelVAAPI:    2,
	})
	hwAccel := tool.DetectHWAccel(context.Background(), cfg.HWAccelPref)

	deps := processor.Deps{
		Store:      store,
		Assets:     assetRepo.AsLookup(),
		ProbeCache: probeCache,
		Tool:       tool,
		HWAccel:    hwAccel,
		Preset:     mediatool.PresetByName(cfg.EncodingPreset),
	}

	// Visibility timeout must exceed the per-job wall-clock timeout so an
	// in-flight lease is never reclaimed out from under its worker.
	visibilityTimeout := cfg.JobTimeout + 5*time.Minute
	q := queue.New(rdb, visibilityTimeout)

	pool := dispatcher.New(jobRepo, assetRepo, q, resultCache, deps, cfg.WorkerCount, cfg.JobTimeout, os.TempDir())

	sweeper := maintenance.New(db, assetRepo, jobRepo, store, cfg.RetentionDays, 90*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("failed to start maintenance sweeper:", err)
	}

	go reclaimLoop(ctx, q)

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		slog.Default().Info("worker pool starting", "workers", cfg.WorkerCount)
		pool.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Default().Info("shutting down worker")

	cancel()
	sweeper.Stop()

	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		slog.Default().Warn("worker pool did not drain within shutdown timeout")
	}

	slog.Default().Info("worker exited")
}

// reclaimLoop periodically sweeps the queue's processing hash for leases
// held past their visibility timeout (a worker crashed without
// acknowledging) and returns them to pending.
func reclaimLoop(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.ReclaimExpired(ctx); err != nil {
				slog.Default().Error("queue reclaim failed", "error", err)
			} else if n > 0 {
				slog.Default().Warn("reclaimed expired queue leases", "count", n)
			}
		}
	}
}
