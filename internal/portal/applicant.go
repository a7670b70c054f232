package portal

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"gorm.io/datatypes"

	"cohortflow/internal/access"
	"cohortflow/internal/audit"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/metrics"
	"cohortflow/internal/store"
	"cohortflow/internal/workflow"
)

// Empty is the input of procedures that take no arguments.
type Empty struct{}

type UpdateProfileInput struct {
	FirstName        string                  `json:"first_name" validate:"required,max=128"`
	LastName         string                  `json:"last_name" validate:"required,max=128"`
	Email            string                  `json:"email" validate:"required,email"`
	Phone            string                  `json:"phone" validate:"required,max=64"`
	DateOfBirth      string                  `json:"date_of_birth" validate:"required"`
	Address          string                  `json:"address" validate:"required"`
	City             string                  `json:"city" validate:"required"`
	State            string                  `json:"state" validate:"required"`
	ZipCode          string                  `json:"zip_code" validate:"required,max=32"`
	EmergencyContact domain.EmergencyContact `json:"emergency_contact" validate:"required"`
}

type CreateApplicationInput struct {
	ProgramID string            `json:"program_id" validate:"required"`
	Responses map[string]string `json:"responses"`
}

type UpdateApplicationInput struct {
	ApplicationID string            `json:"application_id" validate:"required"`
	Responses     map[string]string `json:"responses" validate:"required"`
}

type ApplicationRef struct {
	ApplicationID string `json:"application_id" validate:"required"`
}

type AddDocumentInput struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=255"`
	MediaType     string `json:"media_type" validate:"required"`
	Size          int64  `json:"size" validate:"gt=0"`
	ObjectKey     string `json:"object_key" validate:"required"`
}

type DocumentRef struct {
	DocumentID string `json:"document_id" validate:"required"`
}

// ApplicationDetail is an application with its documents and program.
type ApplicationDetail struct {
	Application database.Application `json:"application"`
	Program     *database.Program    `json:"program"`
}

// GetProfile returns the caller's applicant profile, or nil when none has been saved.
func (s *Service) GetProfile(ctx context.Context, sess *access.Session, in Empty) (*database.ApplicantProfile, error) {
	return access.Wrap(s.getProfile, policy("getProfile", access.Anyone))(ctx, sess, in)
}

func (s *Service) getProfile(ctx context.Context, sess *access.Session, _ Empty) (*database.ApplicantProfile, error) {
	profile, err := s.store.Profiles().GetByUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load profile", err)
	}
	return profile, nil
}

// UpdateProfile 创建或覆盖调用者本人的资料。
func (s *Service) UpdateProfile(ctx context.Context, sess *access.Session, in UpdateProfileInput) (*database.ApplicantProfile, error) {
	return access.Wrap(s.updateProfile, policy("updateProfile", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) updateProfile(ctx context.Context, sess *access.Session, in UpdateProfileInput) (*database.ApplicantProfile, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	saved, err := s.store.Profiles().Upsert(ctx, &database.ApplicantProfile{
		UserID:           sess.UserID,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Email:            in.Email,
		Phone:            in.Phone,
		DateOfBirth:      in.DateOfBirth,
		Address:          in.Address,
		City:             in.City,
		State:            in.State,
		ZipCode:          in.ZipCode,
		EmergencyContact: in.EmergencyContact,
	})
	if err != nil {
		return nil, internal("save profile", err)
	}
	if err := s.record(ctx, sess, audit.ActionUpdateProfile, audit.EntityProfile, saved.ID, "Updated applicant profile"); err != nil {
		return nil, err
	}
	return saved, nil
}

// ListOpenPrograms lists programs currently accepting applications.
func (s *Service) ListOpenPrograms(ctx context.Context, sess *access.Session, in Empty) ([]database.Program, error) {
	return access.Wrap(s.listOpenPrograms, policy("listOpenPrograms", access.Anyone))(ctx, sess, in)
}

func (s *Service) listOpenPrograms(ctx context.Context, _ *access.Session, _ Empty) ([]database.Program, error) {
	programs, err := s.store.Programs().List(ctx, store.ProgramFilter{Status: domain.ProgramOpen})
	if err != nil {
		return nil, internal("list programs", err)
	}
	return programs, nil
}

// ownProfile 返回调用者的资料；没有资料时返回 store.ErrNotFound。
func (s *Service) ownProfile(ctx context.Context, sess *access.Session) (*database.ApplicantProfile, error) {
	return s.store.Profiles().GetByUser(ctx, sess.UserID)
}

// ownApplication loads an application owned by the caller. Applications of other applicants
// are reported as not found.
func (s *Service) ownApplication(ctx context.Context, sess *access.Session, applicationID string) (*database.Application, error) {
	profile, err := s.ownProfile(ctx, sess)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	app, err := s.store.Applications().Get(ctx, applicationID)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	if app.ApplicantID != profile.ID {
		return nil, errcode.NotFound("application")
	}
	return app, nil
}

func (s *Service) ListMyApplications(ctx context.Context, sess *access.Session, in Empty) ([]database.Application, error) {
	return access.Wrap(s.listMyApplications, policy("listMyApplications", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) listMyApplications(ctx context.Context, sess *access.Session, _ Empty) ([]database.Application, error) {
	profile, err := s.ownProfile(ctx, sess)
	if errors.Is(err, store.ErrNotFound) {
		return []database.Application{}, nil
	}
	if err != nil {
		return nil, internal("load profile", err)
	}
	apps, err := s.store.Applications().List(ctx, store.ApplicationFilter{ApplicantID: profile.ID})
	if err != nil {
		return nil, internal("list applications", err)
	}
	for i := range apps {
		if err := s.withDocuments(ctx, &apps[i]); err != nil {
			return nil, err
		}
	}
	return apps, nil
}

func (s *Service) GetMyApplication(ctx context.Context, sess *access.Session, in ApplicationRef) (*ApplicationDetail, error) {
	return access.Wrap(s.getMyApplication, policy("getMyApplication", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) getMyApplication(ctx context.Context, sess *access.Session, in ApplicationRef) (*ApplicationDetail, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.ownApplication(ctx, sess, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := s.withDocuments(ctx, app); err != nil {
		return nil, err
	}
	detail := &ApplicationDetail{Application: *app}
	program, err := s.store.Programs().Get(ctx, app.ProgramID)
	switch {
	case err == nil:
		detail.Program = program
	case !errors.Is(err, store.ErrNotFound):
		return nil, internal("load program", err)
	}
	return detail, nil
}

// CreateApplication starts a draft for an open program. The caller must have saved a profile.
func (s *Service) CreateApplication(ctx context.Context, sess *access.Session, in CreateApplicationInput) (*database.Application, error) {
	return access.Wrap(s.createApplication, policy("createApplication", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) createApplication(ctx context.Context, sess *access.Session, in CreateApplicationInput) (*database.Application, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	profile, err := s.ownProfile(ctx, sess)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.NewValidation("complete your profile before applying")
	}
	if err != nil {
		return nil, internal("load profile", err)
	}
	program, err := s.store.Programs().Get(ctx, in.ProgramID)
	if err != nil {
		return nil, notFoundOr(err, "program")
	}
	if program.Status != domain.ProgramOpen {
		return nil, errcode.NewValidation("program is not accepting applications")
	}

	responses := maps.Clone(in.Responses)
	if responses == nil {
		responses = map[string]string{}
	}
	app := &database.Application{
		ProgramID:   program.ID,
		ApplicantID: profile.ID,
		Status:      domain.StatusDraft,
		Responses:   datatypes.NewJSONType(responses),
	}
	if err := s.store.Applications().Create(ctx, app); err != nil {
		return nil, internal("create application", err)
	}
	detail := fmt.Sprintf("Started application for %s", program.Name)
	if err := s.record(ctx, sess, audit.ActionCreateApplication, audit.EntityApplication, app.ID, detail); err != nil {
		return nil, err
	}
	app.Documents = []database.Document{}
	return app, nil
}

// UpdateApplication replaces the responses of a draft.
func (s *Service) UpdateApplication(ctx context.Context, sess *access.Session, in UpdateApplicationInput) (*database.Application, error) {
	return access.Wrap(s.updateApplication, policy("updateApplication", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) updateApplication(ctx context.Context, sess *access.Session, in UpdateApplicationInput) (*database.Application, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.ownApplication(ctx, sess, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.StatusDraft {
		return nil, errcode.NewValidation("only draft applications can be edited")
	}
	app.Responses = datatypes.NewJSONType(maps.Clone(in.Responses))
	if err := s.store.Applications().Update(ctx, app); err != nil {
		return nil, internal("update application", err)
	}
	if err := s.record(ctx, sess, audit.ActionUpdateApplication, audit.EntityApplication, app.ID, "Updated application responses"); err != nil {
		return nil, err
	}
	if err := s.withDocuments(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// SubmitApplication moves the caller's draft to submitted and stamps submittedAt.
func (s *Service) SubmitApplication(ctx context.Context, sess *access.Session, in ApplicationRef) (*database.Application, error) {
	return access.Wrap(s.submitApplication, policy("submitApplication", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) submitApplication(ctx context.Context, sess *access.Session, in ApplicationRef) (*database.Application, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.ownApplication(ctx, sess, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	from := app.Status
	if err := workflow.ValidateTransition(from, domain.StatusSubmitted, sess.Role); err != nil {
		return nil, err
	}

	now := s.now()
	app.Status = domain.StatusSubmitted
	app.SubmittedAt = &now
	if err := s.store.Applications().Update(ctx, app); err != nil {
		return nil, internal("submit application", err)
	}
	metrics.ObserveStatusTransition(string(from), string(app.Status))
	if err := s.record(ctx, sess, audit.ActionSubmitApplication, audit.EntityApplication, app.ID,
		audit.StatusChangeDetail(string(from), string(app.Status))); err != nil {
		return nil, err
	}
	if err := s.withDocuments(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// AddDocument registers an uploaded blob against the caller's draft.
func (s *Service) AddDocument(ctx context.Context, sess *access.Session, in AddDocumentInput) (*database.Document, error) {
	return access.Wrap(s.addDocument, policy("addDocument", access.ApplicantOnly))(ctx, sess, in)
}

func (s *Service) addDocument(ctx context.Context, sess *access.Session, in AddDocumentInput) (*database.Document, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.ownApplication(ctx, sess, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.StatusDraft {
		return nil, errcode.NewValidation("documents can only be added to draft applications")
	}
	doc := &database.Document{
		ApplicationID: app.ID,
		Name:          in.Name,
		MediaType:     in.MediaType,
		Size:          in.Size,
		ObjectKey:     in.ObjectKey,
		UploadedBy:    sess.UserID,
	}
	if err := s.store.Documents().Create(ctx, doc); err != nil {
		return nil, notFoundOr(err, "application")
	}
	metrics.ObserveDocumentAdded()
	if err := s.record(ctx, sess, audit.ActionAddDocument, audit.EntityDocument, doc.ID, "Uploaded "+doc.Name); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns document metadata to its owner or to staff.
func (s *Service) GetDocument(ctx context.Context, sess *access.Session, in DocumentRef) (*database.Document, error) {
	return access.Wrap(s.getDocument, policy("getDocument", access.Anyone))(ctx, sess, in)
}

func (s *Service) getDocument(ctx context.Context, sess *access.Session, in DocumentRef) (*database.Document, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	doc, err := s.store.Documents().Get(ctx, in.DocumentID)
	if err != nil {
		return nil, notFoundOr(err, "document")
	}
	if sess.Role == domain.RoleApplicant {
		if _, err := s.ownApplication(ctx, sess, doc.ApplicationID); err != nil {
			if errcode.Is(err, errcode.KindNotFound) {
				return nil, errcode.NotFound("document")
			}
			return nil, err
		}
		return doc, nil
	}
	// 员工只能看到已提交申请的文档。
	app, err := s.store.Applications().Get(ctx, doc.ApplicationID)
	if err != nil {
		return nil, notFoundOr(err, "document")
	}
	if app.Status.Private() {
		return nil, errcode.NotFound("document")
	}
	return doc, nil
}
