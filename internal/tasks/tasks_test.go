package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"

	"cohortflow/internal/portal"
)

type recordingClient struct {
	tasks []*asynq.Task
}

func (r *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "job-1", Type: task.Type()}, nil
}

func TestExportQueueEnqueuesPayload(t *testing.T) {
	client := &recordingClient{}
	queue := NewExportQueue(client, 3)

	jobID, err := queue.EnqueueExport(context.Background(), portal.ExportJobRequest{
		ProgramID:     "p1",
		RequestedBy:   "coord-1",
		CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobID != "job-1" || len(client.tasks) != 1 {
		t.Fatalf("unexpected enqueue result %q %d", jobID, len(client.tasks))
	}

	task := client.tasks[0]
	if task.Type() != TypeExportApplications {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	payload, err := ParseExportApplicationsPayload(task.Payload())
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.ProgramID != "p1" || payload.RequestedBy != "coord-1" || payload.CorrelationID != "corr-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestParseExportPayloadRequiresFields(t *testing.T) {
	data, _ := json.Marshal(ExportApplicationsPayload{ProgramID: "p1"})
	if _, err := ParseExportApplicationsPayload(data); err == nil {
		t.Fatalf("expected error for missing requester")
	}
	if _, err := ParseExportApplicationsPayload([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}
