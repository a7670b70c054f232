package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cohortflow/internal/api"
	"cohortflow/internal/auth"
	"cohortflow/internal/config"
	"cohortflow/internal/portal"
	"cohortflow/internal/scoring"
	"cohortflow/internal/seed"
	"cohortflow/internal/storage"
	"cohortflow/internal/store"
	"cohortflow/internal/tasks"
	"cohortflow/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	st, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	log.Printf("store ready, backend=%s driver=%s", cfg.Store.Backend, cfg.Database.Driver)

	if cfg.Store.SeedDemo {
		if _, err := seed.Demo(context.Background(), st, cfg.Store.SeedPassword, logger); err != nil {
			log.Fatalf("seed demo data: %v", err)
		}
	}

	issuer, err := auth.LoadIssuer(cfg.Auth)
	if err != nil {
		log.Fatalf("load token issuer: %v", err)
	}

	policy, err := scoring.ParseWeightPolicy(cfg.Scoring.WeightPolicy)
	if err != nil {
		log.Fatalf("scoring policy: %v", err)
	}

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

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	asynqClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	scorer := scoring.NewScorer(policy)
	logger.Info("scoring configured", slog.String("weight_policy", string(scorer.Policy())))

	svc := portal.New(st, scorer,
		portal.WithLogger(logger),
		portal.WithExportQueue(tasks.NewExportQueue(asynqClient, cfg.Export.MaxRetry)),
	)

	// memory 后端的数据只在本进程内可见，导出任务必须由同一进程消费。
	if cfg.Store.Backend == "memory" {
		exportHandler := worker.NewExportTaskHandler(st, storageClient, worker.NewNotifier(redisClient), cfg.Export.LinkTTL, logger)
		server := worker.NewServer(redisOpt, 2, logger)
		if err := server.Start(worker.NewServeMux(exportHandler)); err != nil {
			log.Fatalf("start in-process worker: %v", err)
		}
		defer server.Shutdown()
		logger.Info("in-process export worker started")
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Deps{
		Config:  cfg,
		Store:   st,
		Portal:  svc,
		Issuer:  issuer,
		Cache:   redisClient,
		Pubsub:  redisClient,
		Storage: storageClient,
		Logger:  logger,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
