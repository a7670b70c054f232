package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cohortflow/internal/config"
	"cohortflow/internal/storage"
	"cohortflow/internal/store"
	"cohortflow/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.Store.Backend != "gorm" {
		log.Fatalf("worker requires the gorm store backend, got %q (memory exports run inside the api process)", cfg.Store.Backend)
	}
	st, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	exportHandler := worker.NewExportTaskHandler(st, storageClient, worker.NewNotifier(redisClient), cfg.Export.LinkTTL, logger)
	server := worker.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, 10, logger)

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(worker.NewServeMux(exportHandler)); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
