package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
)

// Gorm 是基于 GORM 的持久化实现，适用于 PostgreSQL 与 SQLite。
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an opened, migrated connection.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Users() UserStore               { return gormUsers{g.db} }
func (g *Gorm) Profiles() ProfileStore         { return gormProfiles{g.db} }
func (g *Gorm) Programs() ProgramStore         { return gormPrograms{g.db} }
func (g *Gorm) Applications() ApplicationStore { return gormApplications{g.db} }
func (g *Gorm) Documents() DocumentStore       { return gormDocuments{g.db} }
func (g *Gorm) Reviews() ReviewStore           { return gormReviews{g.db} }
func (g *Gorm) AuditLogs() AuditLogStore       { return gormAudit{g.db} }

// translate maps driver errors onto ErrNotFound / ErrConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	low := strings.ToLower(err.Error())
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(low, "duplicate") || strings.Contains(low, "unique constraint") {
		return ErrConflict
	}
	return err
}

// newID 生成 UUIDv7：同一进程内严格递增，created_at 相同时按 id 排序即为插入顺序。
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func ensureID(id *string) {
	if *id == "" {
		*id = newID()
	}
}

type gormUsers struct{ db *gorm.DB }

func (s gormUsers) Create(ctx context.Context, user *database.User) error {
	ensureID(&user.ID)
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error)
}

func (s gormUsers) Get(ctx context.Context, id string) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s gormUsers) GetByEmail(ctx context.Context, email string) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s gormUsers) UpdateCredentials(ctx context.Context, id, passwordHash string, mustChange bool) error {
	res := s.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":        passwordHash,
		"must_change_password": mustChange,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s gormUsers) ListByRole(ctx context.Context, role domain.Role) ([]database.User, error) {
	var users []database.User
	err := s.db.WithContext(ctx).Where("role = ?", role).Order("created_at ASC").Find(&users).Error
	return users, translate(err)
}

type gormProfiles struct{ db *gorm.DB }

func (s gormProfiles) GetByUser(ctx context.Context, userID string) (*database.ApplicantProfile, error) {
	var profile database.ApplicantProfile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

func (s gormProfiles) Get(ctx context.Context, id string) (*database.ApplicantProfile, error) {
	var profile database.ApplicantProfile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

var profileUpsertColumns = []string{
	"first_name", "last_name", "email", "phone", "date_of_birth",
	"address", "city", "state", "zip_code",
	"emergency_name", "emergency_relationship", "emergency_phone",
	"updated_at",
}

func (s gormProfiles) Upsert(ctx context.Context, profile *database.ApplicantProfile) (*database.ApplicantProfile, error) {
	row := *profile
	row.ID = newID()
	row.Applications = nil

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(profileUpsertColumns),
	}).Omit(clause.Associations).Create(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return s.GetByUser(ctx, profile.UserID)
}

type gormPrograms struct{ db *gorm.DB }

func (s gormPrograms) Create(ctx context.Context, program *database.Program) error {
	ensureID(&program.ID)
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(program).Error)
}

func (s gormPrograms) Get(ctx context.Context, id string) (*database.Program, error) {
	var program database.Program
	if err := s.db.WithContext(ctx).First(&program, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &program, nil
}

func (s gormPrograms) Update(ctx context.Context, program *database.Program) error {
	res := s.db.WithContext(ctx).Model(program).
		Select("name", "description", "start_date", "end_date", "application_deadline",
			"capacity", "requirements", "rubric", "status", "updated_at").
		Updates(program)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return translate(s.db.WithContext(ctx).First(program, "id = ?", program.ID).Error)
}

func (s gormPrograms) List(ctx context.Context, filter ProgramFilter) ([]database.Program, error) {
	q := s.db.WithContext(ctx).Model(&database.Program{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var programs []database.Program
	err := q.Order("created_at DESC").Find(&programs).Error
	return programs, translate(err)
}

type gormApplications struct{ db *gorm.DB }

func (s gormApplications) Create(ctx context.Context, app *database.Application) error {
	ensureID(&app.ID)
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(app).Error)
}

func (s gormApplications) Get(ctx context.Context, id string) (*database.Application, error) {
	var app database.Application
	if err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

func (s gormApplications) Update(ctx context.Context, app *database.Application) error {
	res := s.db.WithContext(ctx).Model(app).
		Select("status", "responses", "submitted_at", "updated_at").
		Updates(app)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return translate(s.db.WithContext(ctx).First(app, "id = ?", app.ID).Error)
}

func (s gormApplications) List(ctx context.Context, filter ApplicationFilter) ([]database.Application, error) {
	q := s.db.WithContext(ctx).Model(&database.Application{})
	if filter.ProgramID != "" {
		q = q.Where("program_id = ?", filter.ProgramID)
	}
	if filter.ApplicantID != "" {
		q = q.Where("applicant_id = ?", filter.ApplicantID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	var apps []database.Application
	err := q.Order("created_at ASC, id ASC").Find(&apps).Error
	return apps, translate(err)
}

type gormDocuments struct{ db *gorm.DB }

func (s gormDocuments) Create(ctx context.Context, doc *database.Document) error {
	ensureID(&doc.ID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.Application{}).Where("id = ?", doc.ApplicationID).Count(&count).Error; err != nil {
			return translate(err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return translate(tx.Create(doc).Error)
	})
}

func (s gormDocuments) Get(ctx context.Context, id string) (*database.Document, error) {
	var doc database.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func (s gormDocuments) ListByApplication(ctx context.Context, applicationID string) ([]database.Document, error) {
	var docs []database.Document
	err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).Order("uploaded_at ASC").Find(&docs).Error
	return docs, translate(err)
}

type gormReviews struct{ db *gorm.DB }

var reviewUpsertColumns = []string{
	"program_id", "scores", "total_score", "comments", "recommendation", "submitted_at", "updated_at",
}

func (s gormReviews) Upsert(ctx context.Context, review *database.Review) (*database.Review, error) {
	row := *review
	row.ID = newID()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "application_id"}, {Name: "reviewer_id"}},
		DoUpdates: clause.AssignmentColumns(reviewUpsertColumns),
	}).Create(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return s.Get(ctx, review.ApplicationID, review.ReviewerID)
}

func (s gormReviews) Get(ctx context.Context, applicationID, reviewerID string) (*database.Review, error) {
	var review database.Review
	err := s.db.WithContext(ctx).
		Where("application_id = ? AND reviewer_id = ?", applicationID, reviewerID).
		First(&review).Error
	if err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

func (s gormReviews) ListByApplication(ctx context.Context, applicationID string) ([]database.Review, error) {
	var reviews []database.Review
	err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).Order("created_at ASC").Find(&reviews).Error
	return reviews, translate(err)
}

func (s gormReviews) ListByReviewer(ctx context.Context, reviewerID string) ([]database.Review, error) {
	var reviews []database.Review
	err := s.db.WithContext(ctx).Where("reviewer_id = ?", reviewerID).Order("created_at ASC").Find(&reviews).Error
	return reviews, translate(err)
}

type gormAudit struct{ db *gorm.DB }

func (s gormAudit) Append(ctx context.Context, entry *database.AuditLog) error {
	ensureID(&entry.ID)
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func (s gormAudit) List(ctx context.Context, limit, offset int) ([]database.AuditLog, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&database.AuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var entries []database.AuditLog
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return entries, total, nil
}
