package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"cohortflow/internal/portal"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportQueue 通过 asynq 投递导出任务，实现 portal.ExportQueue。
type ExportQueue struct {
	client   enqueuer
	maxRetry int
}

func NewExportQueue(client enqueuer, maxRetry int) *ExportQueue {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &ExportQueue{client: client, maxRetry: maxRetry}
}

func (q *ExportQueue) EnqueueExport(ctx context.Context, job portal.ExportJobRequest) (string, error) {
	task, err := NewExportApplicationsTask(uuid.NewString(), ExportApplicationsPayload{
		ProgramID:     job.ProgramID,
		RequestedBy:   job.RequestedBy,
		CorrelationID: job.CorrelationID,
	}, q.maxRetry)
	if err != nil {
		return "", fmt.Errorf("build export task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue export task: %w", err)
	}
	return info.ID, nil
}
