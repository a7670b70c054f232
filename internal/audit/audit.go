// Package audit appends and pages through the portal's audit trail.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"cohortflow/internal/database"
	"cohortflow/internal/errcode"
	"cohortflow/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Actions recorded by the portal.
const (
	ActionUpdateProfile     = "update_profile"
	ActionCreateApplication = "create_application"
	ActionUpdateApplication = "update_application"
	ActionSubmitApplication = "submit_application"
	ActionAddDocument       = "add_document"
	ActionSubmitReview      = "submit_review"
	ActionCreateProgram     = "create_program"
	ActionUpdateProgram     = "update_program"
	ActionUpdateStatus      = "update_status"
	ActionExport            = "export_applications"
	ActionRequestExport     = "request_export"
)

// Entity types.
const (
	EntityProfile     = "applicant_profile"
	EntityApplication = "application"
	EntityDocument    = "document"
	EntityReview      = "review"
	EntityProgram     = "program"
)

// Actor identifies who performed an action.
type Actor struct {
	ID   string
	Name string
}

// Page is one slice of the audit log, newest first.
type Page struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

type Recorder struct {
	logs   store.AuditLogStore
	logger *slog.Logger
}

func NewRecorder(logs store.AuditLogStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logs: logs, logger: logger}
}

// Record 追加一条审计记录，时间戳由存储层写入。
func (r *Recorder) Record(ctx context.Context, actor Actor, action, entityType, entityID, detail string) error {
	entry := &database.AuditLog{
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	if err := r.logs.Append(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "audit append failed",
			slog.String("action", action),
			slog.String("entity_type", entityType),
			slog.String("entity_id", entityID),
			slog.Any("error", err),
		)
		return errcode.NewInternal(fmt.Errorf("append audit entry: %w", err))
	}
	return nil
}

// ListRecent returns entries newest first. limit must be within 1..MaxLimit and offset ≥ 0.
func (r *Recorder) ListRecent(ctx context.Context, limit, offset int) (*Page, error) {
	if limit < 1 || limit > MaxLimit {
		return nil, errcode.NewValidationf("limit must be between 1 and %d", MaxLimit)
	}
	if offset < 0 {
		return nil, errcode.NewValidation("offset must not be negative")
	}

	entries, total, err := r.logs.List(ctx, limit, offset)
	if err != nil {
		return nil, errcode.NewInternal(fmt.Errorf("list audit entries: %w", err))
	}
	if entries == nil {
		entries = []database.AuditLog{}
	}
	return &Page{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// StatusChangeDetail formats the detail line for a status transition.
func StatusChangeDetail(from, to string) string {
	return fmt.Sprintf("Changed status from %s to %s", from, to)
}
