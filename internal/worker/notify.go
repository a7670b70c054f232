package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cohortflow/internal/tasks"
)

// ExportNotifyMessage 是导出任务结束时经 Redis Pub/Sub 转发给前端的消息。
// 注意：这里的字段名与前端解析保持一致。
type ExportNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	JobID         string `json:"job_id"`
	ProgramID     string `json:"program_id"`
	CorrelationID string `json:"correlation_id"`
	FileName      string `json:"file_name,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	Rows          int    `json:"rows"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

const notifyTypeExport = "export"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Notifier publishes messages on the per-user channel the websocket handler subscribes to.
type Notifier struct {
	client publisher
}

func NewNotifier(client publisher) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, userID string, msg ExportNotifyMessage) error {
	msg.Type = notifyTypeExport
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.NotifyChannel(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
