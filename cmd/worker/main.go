package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"paperchat/internal/activities"
	"paperchat/internal/blobstore"
	"paperchat/internal/config"
	"paperchat/internal/embedding"
	"paperchat/internal/providers"
	"paperchat/internal/storage"
	"paperchat/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal("dial temporal", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	blobs, err := blobstore.NewFSStore(cfg.BlobRoot)
	if err != nil {
		logger.Fatal("open blob store", zap.Error(err))
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		logger.Fatal("build providers", zap.Error(err))
	}
	gateway := embedding.NewGateway(pm.FirstEmbedProvider(), embedding.Options{
		Dimension:       cfg.EmbedDim,
		BatchSize:       cfg.EmbedBatchSize,
		Parallelism:     cfg.EmbedParallel,
		InterBatchDelay: time.Duration(cfg.EmbedBatchDelayMS) * time.Millisecond,
	})

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.WorkerMaxActivities,
		WorkerActivitiesPerSecond:          cfg.WorkerActivitiesPerSec,
	})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, db, blobs, gateway, logger))

	logger.Info("paperchat worker listening",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}
