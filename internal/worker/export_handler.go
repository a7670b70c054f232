package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"cohortflow/internal/errcode"
	"cohortflow/internal/export"
	"cohortflow/internal/storage"
	"cohortflow/internal/store"
	"cohortflow/internal/tasks"
)

type objectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	PresignedDownloadURL(ctx context.Context, objectKey string, duration time.Duration, fileName string) (string, error)
}

// ExportTaskHandler 负责消费导出任务：生成 CSV、上传到对象存储并通知发起人。
type ExportTaskHandler struct {
	programs  store.ProgramStore
	collector *export.Collector
	storage   objectStorage
	notifier  *Notifier
	linkTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewExportTaskHandler 创建任务处理器。
func NewExportTaskHandler(st store.Store, storage objectStorage, notifier *Notifier, linkTTL time.Duration, logger *slog.Logger) *ExportTaskHandler {
	if linkTTL <= 0 {
		linkTTL = 30 * time.Minute
	}
	return &ExportTaskHandler{
		programs:  st.Programs(),
		collector: export.NewCollector(st),
		storage:   storage,
		notifier:  notifier,
		linkTTL:   linkTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseExportApplicationsPayload(t.Payload())
	if err != nil {
		h.logger.Error("invalid export task payload", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	jobID, _ := asynq.GetTaskID(ctx)
	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("program_id", payload.ProgramID),
		slog.String("job_id", jobID),
	)
	log.Info("starting export task")

	defer func() {
		if retErr == nil {
			return
		}
		if !errors.Is(retErr, asynq.SkipRetry) && !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := ExportNotifyMessage{
			Status:        "error",
			JobID:         jobID,
			ProgramID:     payload.ProgramID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if errors.Is(retErr, store.ErrNotFound) {
			notify.ErrorCode = errcode.NotFoundCode
		}
		if err := h.notifier.Notify(ctx, payload.RequestedBy, notify); err != nil {
			log.Error("publish export error notification failed", slog.Any("error", err))
		}
	}()

	if _, err := h.programs.Get(ctx, payload.ProgramID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("program not found, dropping export task")
			return fmt.Errorf("program %s: %w: %w", payload.ProgramID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("load program: %w", err)
	}

	rows, err := h.collector.Rows(ctx, payload.ProgramID)
	if err != nil {
		log.Error("collect export rows failed", slog.Any("error", err))
		return err
	}
	data, err := export.Render(rows)
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	fileName := export.FileName(payload.ProgramID, h.now())
	objectKey := storage.ExportObjectKey(payload.ProgramID, fileName)
	if _, err := h.storage.UploadFile(ctx, objectKey, bytes.NewReader(data), int64(len(data)), export.ContentType); err != nil {
		log.Error("upload export to minio failed", slog.Any("error", err))
		return err
	}

	downloadURL, err := h.storage.PresignedDownloadURL(ctx, objectKey, h.linkTTL, fileName)
	if err != nil {
		log.Error("presign export failed", slog.Any("error", err))
		return err
	}

	notify := ExportNotifyMessage{
		Status:        "completed",
		JobID:         jobID,
		ProgramID:     payload.ProgramID,
		CorrelationID: payload.CorrelationID,
		FileName:      fileName,
		DownloadURL:   downloadURL,
		Rows:          len(rows),
		ErrorCode:     errcode.OK,
	}
	if err := h.notifier.Notify(ctx, payload.RequestedBy, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("export task completed", slog.Int("rows", len(rows)), slog.String("object_key", objectKey))
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
