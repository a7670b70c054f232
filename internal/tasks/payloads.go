package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeExportApplications = "export:applications"
)

// ExportApplicationsPayload 描述一次异步导出。
type ExportApplicationsPayload struct {
	ProgramID     string `json:"program_id"`
	RequestedBy   string `json:"requested_by"`
	CorrelationID string `json:"correlation_id"`
}

// NewExportApplicationsTask 构造导出任务；taskID 同时作为返回给前端的 job id。
func NewExportApplicationsTask(taskID string, payload ExportApplicationsPayload, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExportApplications, data, asynq.TaskID(taskID), asynq.MaxRetry(maxRetry)), nil
}

// ParseExportApplicationsPayload decodes and checks a task payload.
func ParseExportApplicationsPayload(data []byte) (ExportApplicationsPayload, error) {
	var payload ExportApplicationsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode export payload: %w", err)
	}
	if payload.ProgramID == "" || payload.RequestedBy == "" {
		return payload, fmt.Errorf("export payload requires program_id and requested_by")
	}
	return payload, nil
}

// NotifyChannel 是推送给某个用户的 Redis Pub/Sub 频道。
func NotifyChannel(userID string) string {
	return "user_notify:" + userID
}
