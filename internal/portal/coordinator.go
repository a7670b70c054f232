package portal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"

	"cohortflow/internal/access"
	"cohortflow/internal/audit"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/export"
	"cohortflow/internal/metrics"
	"cohortflow/internal/pipeline"
	"cohortflow/internal/store"
	"cohortflow/internal/workflow"
)

// ProgramInput carries every editable program field; updates replace all of them.
type ProgramInput struct {
	Name                string               `json:"name" validate:"required,max=255"`
	Description         string               `json:"description"`
	StartDate           time.Time            `json:"start_date" validate:"required"`
	EndDate             time.Time            `json:"end_date" validate:"required,gtefield=StartDate"`
	ApplicationDeadline time.Time            `json:"application_deadline" validate:"required"`
	Capacity            int                  `json:"capacity" validate:"gte=0"`
	Requirements        []string             `json:"requirements"`
	Rubric              domain.Rubric        `json:"rubric"`
	Status              domain.ProgramStatus `json:"status"`
}

type CreateProgramInput struct {
	ProgramInput
}

type UpdateProgramInput struct {
	ProgramID string `json:"program_id" validate:"required"`
	ProgramInput
}

type ProgramRef struct {
	ProgramID string `json:"program_id" validate:"required"`
}

// ExportJobInput requests an asynchronous export. CorrelationID is filled in by the transport.
type ExportJobInput struct {
	ProgramID     string `json:"program_id" validate:"required"`
	CorrelationID string `json:"-"`
}

type UpdateStatusInput struct {
	ApplicationID string                   `json:"application_id" validate:"required"`
	Status        domain.ApplicationStatus `json:"status" validate:"required"`
}

// AuditLogsInput pages the audit log; nil fields take their defaults (limit 50, offset 0).
type AuditLogsInput struct {
	Limit  *int `json:"limit" validate:"omitempty,min=1,max=200"`
	Offset *int `json:"offset" validate:"omitempty,min=0"`
}

// ExportFile is a rendered CSV export.
type ExportFile struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Rows        int    `json:"rows"`
}

// ExportJob acknowledges a queued export.
type ExportJob struct {
	JobID     string `json:"job_id"`
	ProgramID string `json:"program_id"`
}

// DashboardStats 是协调员首页的汇总数字。
type DashboardStats struct {
	TotalApplications int `json:"total_applications"`
	Submitted         int `json:"submitted"`
	UnderReview       int `json:"under_review"`
	Accepted          int `json:"accepted"`
	TotalReviews      int `json:"total_reviews"`
	Programs          int `json:"programs"`
	ActivePrograms    int `json:"active_programs"`
	Reviewers         int `json:"reviewers"`
}

func (s *Service) ListPrograms(ctx context.Context, sess *access.Session, in Empty) ([]database.Program, error) {
	return access.Wrap(s.listPrograms, policy("listPrograms", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) listPrograms(ctx context.Context, _ *access.Session, _ Empty) ([]database.Program, error) {
	programs, err := s.store.Programs().List(ctx, store.ProgramFilter{})
	if err != nil {
		return nil, internal("list programs", err)
	}
	return programs, nil
}

func (s *Service) GetProgram(ctx context.Context, sess *access.Session, in ProgramRef) (*database.Program, error) {
	return access.Wrap(s.getProgram, policy("getProgram", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) getProgram(ctx context.Context, _ *access.Session, in ProgramRef) (*database.Program, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	program, err := s.store.Programs().Get(ctx, in.ProgramID)
	if err != nil {
		return nil, notFoundOr(err, "program")
	}
	return program, nil
}

// validateProgram 校验日期、状态与 rubric（按当前权重策略）。
func (s *Service) validateProgram(in ProgramInput) (domain.ProgramStatus, error) {
	if err := s.check(in); err != nil {
		return "", err
	}
	status := in.Status
	if status == "" {
		status = domain.ProgramDraft
	}
	if !status.Valid() {
		return "", errcode.NewValidationf("unknown program status %q", in.Status)
	}
	if err := s.scorer.ValidateRubric(in.Rubric); err != nil {
		return "", err
	}
	return status, nil
}

func (in ProgramInput) apply(p *database.Program, status domain.ProgramStatus) {
	p.Name = in.Name
	p.Description = in.Description
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.ApplicationDeadline = in.ApplicationDeadline
	p.Capacity = in.Capacity
	p.Requirements = datatypes.JSONSlice[string](trimAll(in.Requirements))
	rubric := in.Rubric
	rubric.Criteria = slices.Clone(in.Rubric.Criteria)
	p.Rubric = datatypes.NewJSONType(rubric)
	p.Status = status
}

func (s *Service) CreateProgram(ctx context.Context, sess *access.Session, in CreateProgramInput) (*database.Program, error) {
	return access.Wrap(s.createProgram, policy("createProgram", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) createProgram(ctx context.Context, sess *access.Session, in CreateProgramInput) (*database.Program, error) {
	status, err := s.validateProgram(in.ProgramInput)
	if err != nil {
		return nil, err
	}
	program := &database.Program{CreatorID: sess.UserID}
	in.apply(program, status)
	if err := s.store.Programs().Create(ctx, program); err != nil {
		return nil, internal("create program", err)
	}
	if err := s.record(ctx, sess, audit.ActionCreateProgram, audit.EntityProgram, program.ID, "Created program: "+program.Name); err != nil {
		return nil, err
	}
	return program, nil
}

func (s *Service) UpdateProgram(ctx context.Context, sess *access.Session, in UpdateProgramInput) (*database.Program, error) {
	return access.Wrap(s.updateProgram, policy("updateProgram", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) updateProgram(ctx context.Context, sess *access.Session, in UpdateProgramInput) (*database.Program, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	status, err := s.validateProgram(in.ProgramInput)
	if err != nil {
		return nil, err
	}
	program, err := s.store.Programs().Get(ctx, in.ProgramID)
	if err != nil {
		return nil, notFoundOr(err, "program")
	}
	in.apply(program, status)
	if err := s.store.Programs().Update(ctx, program); err != nil {
		return nil, notFoundOr(err, "program")
	}
	if err := s.record(ctx, sess, audit.ActionUpdateProgram, audit.EntityProgram, program.ID, "Updated program: "+program.Name); err != nil {
		return nil, err
	}
	return program, nil
}

// GetPipelineData returns the program's board, one bucket per stage.
func (s *Service) GetPipelineData(ctx context.Context, sess *access.Session, in ProgramRef) ([]pipeline.Bucket, error) {
	return access.Wrap(s.getPipelineData, policy("getPipelineData", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) getPipelineData(ctx context.Context, _ *access.Session, in ProgramRef) ([]pipeline.Bucket, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	return s.board.Board(ctx, in.ProgramID)
}

// UpdateApplicationStatus moves an application through the pipeline and audits the change.
func (s *Service) UpdateApplicationStatus(ctx context.Context, sess *access.Session, in UpdateStatusInput) (*database.Application, error) {
	return access.Wrap(s.updateApplicationStatus, policy("updateApplicationStatus", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) updateApplicationStatus(ctx context.Context, sess *access.Session, in UpdateStatusInput) (*database.Application, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Get(ctx, in.ApplicationID)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	from := app.Status
	if err := workflow.ValidateTransition(from, in.Status, sess.Role); err != nil {
		return nil, err
	}

	app.Status = in.Status
	if err := s.store.Applications().Update(ctx, app); err != nil {
		return nil, notFoundOr(err, "application")
	}
	metrics.ObserveStatusTransition(string(from), string(in.Status))
	s.logger.InfoContext(ctx, "application status changed",
		"application_id", app.ID,
		"from", from,
		"to", in.Status,
		"actor_id", sess.UserID,
	)
	if err := s.record(ctx, sess, audit.ActionUpdateStatus, audit.EntityApplication, app.ID,
		audit.StatusChangeDetail(string(from), string(in.Status))); err != nil {
		return nil, err
	}
	if err := s.withDocuments(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Service) GetAuditLogs(ctx context.Context, sess *access.Session, in AuditLogsInput) (*audit.Page, error) {
	return access.Wrap(s.getAuditLogs, policy("getAuditLogs", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) getAuditLogs(ctx context.Context, _ *access.Session, in AuditLogsInput) (*audit.Page, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	limit, offset := audit.DefaultLimit, 0
	if in.Limit != nil {
		limit = *in.Limit
	}
	if in.Offset != nil {
		offset = *in.Offset
	}
	return s.audit.ListRecent(ctx, limit, offset)
}

// ExportApplications renders every application of a program as CSV.
func (s *Service) ExportApplications(ctx context.Context, sess *access.Session, in ProgramRef) (*ExportFile, error) {
	return access.Wrap(s.exportApplications, policy("exportApplications", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) exportApplications(ctx context.Context, sess *access.Session, in ProgramRef) (*ExportFile, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	rows, err := s.exporter.Rows(ctx, in.ProgramID)
	if err != nil {
		return nil, err
	}
	data, err := export.Render(rows)
	if err != nil {
		return nil, internal("render export", err)
	}
	metrics.ObserveExport("sync")
	detail := fmt.Sprintf("Exported %d applications", len(rows))
	if err := s.record(ctx, sess, audit.ActionExport, audit.EntityProgram, in.ProgramID, detail); err != nil {
		return nil, err
	}
	return &ExportFile{
		FileName:    export.FileName(in.ProgramID, s.now()),
		ContentType: export.ContentType,
		Data:        data,
		Rows:        len(rows),
	}, nil
}

// RequestExportJob queues an export; the worker uploads the CSV and notifies the requester.
func (s *Service) RequestExportJob(ctx context.Context, sess *access.Session, in ExportJobInput) (*ExportJob, error) {
	return access.Wrap(s.requestExportJob, policy("requestExportJob", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) requestExportJob(ctx context.Context, sess *access.Session, in ExportJobInput) (*ExportJob, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, errcode.NewInternal(fmt.Errorf("export queue is not configured"))
	}
	if _, err := s.store.Programs().Get(ctx, in.ProgramID); err != nil {
		return nil, notFoundOr(err, "program")
	}
	jobID, err := s.queue.EnqueueExport(ctx, ExportJobRequest{
		ProgramID:     in.ProgramID,
		RequestedBy:   sess.UserID,
		CorrelationID: in.CorrelationID,
	})
	if err != nil {
		return nil, internal("enqueue export", err)
	}
	if err := s.record(ctx, sess, audit.ActionRequestExport, audit.EntityProgram, in.ProgramID, "Requested export job "+jobID); err != nil {
		return nil, err
	}
	return &ExportJob{JobID: jobID, ProgramID: in.ProgramID}, nil
}

func (s *Service) GetDashboardStats(ctx context.Context, sess *access.Session, in Empty) (*DashboardStats, error) {
	return access.Wrap(s.getDashboardStats, policy("getDashboardStats", access.CoordinatorOnly))(ctx, sess, in)
}

func (s *Service) getDashboardStats(ctx context.Context, _ *access.Session, _ Empty) (*DashboardStats, error) {
	apps, err := s.store.Applications().List(ctx, store.ApplicationFilter{})
	if err != nil {
		return nil, internal("list applications", err)
	}
	programs, err := s.store.Programs().List(ctx, store.ProgramFilter{})
	if err != nil {
		return nil, internal("list programs", err)
	}

	stats := &DashboardStats{TotalApplications: len(apps), Programs: len(programs)}
	for _, app := range apps {
		switch app.Status {
		case domain.StatusDraft:
			continue
		case domain.StatusUnderReview:
			stats.UnderReview++
		case domain.StatusAccepted:
			stats.Accepted++
		}
		stats.Submitted++
		reviews, err := s.store.Reviews().ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, internal("list reviews", err)
		}
		stats.TotalReviews += len(reviews)
	}
	for _, p := range programs {
		if p.Status == domain.ProgramOpen {
			stats.ActivePrograms++
		}
	}
	reviewers, err := s.store.Users().ListByRole(ctx, domain.RoleReviewer)
	if err != nil {
		return nil, internal("list reviewers", err)
	}
	stats.Reviewers = len(reviewers)
	return stats, nil
}
