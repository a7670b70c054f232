package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"cohortflow/internal/metrics"
	"cohortflow/internal/tasks"
)

// NewServeMux 注册全部任务处理器并挂上指标中间件。
func NewServeMux(exportHandler *ExportTaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeExportApplications, exportHandler)
	return mux
}

// NewServer builds the asynq server shared by cmd/worker and the in-process worker of cmd/api.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, logger *slog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", slog.String("task_type", task.Type()), slog.Any("error", err))
		}),
	})
}
