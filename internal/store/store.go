// Package store persists portal entities behind narrow per-entity interfaces.
//
// Two implementations exist: Memory for tests and local demos, Gorm for PostgreSQL/SQLite.
// Both assign IDs and timestamps, and both return copies so callers never alias stored state.
package store

import (
	"context"
	"errors"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
)

var (
	// ErrNotFound 表示按主键或唯一键查询不到记录。
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict 表示违反唯一约束（例如重复邮箱）。
	ErrConflict = errors.New("store: unique constraint violated")
)

// Store bundles every entity store.
type Store interface {
	Users() UserStore
	Profiles() ProfileStore
	Programs() ProgramStore
	Applications() ApplicationStore
	Documents() DocumentStore
	Reviews() ReviewStore
	AuditLogs() AuditLogStore
}

type UserStore interface {
	Create(ctx context.Context, user *database.User) error
	Get(ctx context.Context, id string) (*database.User, error)
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	// UpdateCredentials 只更新密码哈希与强制改密标记，角色不可变。
	UpdateCredentials(ctx context.Context, id, passwordHash string, mustChange bool) error
	ListByRole(ctx context.Context, role domain.Role) ([]database.User, error)
}

type ProfileStore interface {
	GetByUser(ctx context.Context, userID string) (*database.ApplicantProfile, error)
	Get(ctx context.Context, id string) (*database.ApplicantProfile, error)
	// Upsert 按 UserID 创建或整体覆盖资料，保留原 ID 与 CreatedAt。
	Upsert(ctx context.Context, profile *database.ApplicantProfile) (*database.ApplicantProfile, error)
}

// ProgramFilter narrows List; zero values match everything.
type ProgramFilter struct {
	Status domain.ProgramStatus
}

type ProgramStore interface {
	Create(ctx context.Context, program *database.Program) error
	Get(ctx context.Context, id string) (*database.Program, error)
	Update(ctx context.Context, program *database.Program) error
	// List 按创建时间倒序返回。
	List(ctx context.Context, filter ProgramFilter) ([]database.Program, error)
}

// ApplicationFilter narrows List; empty fields are ignored.
type ApplicationFilter struct {
	ProgramID   string
	ApplicantID string
	Statuses    []domain.ApplicationStatus
}

type ApplicationStore interface {
	Create(ctx context.Context, app *database.Application) error
	Get(ctx context.Context, id string) (*database.Application, error)
	// Update 写回 Status、Responses、SubmittedAt，并推进 UpdatedAt。
	Update(ctx context.Context, app *database.Application) error
	// List 按插入顺序返回（created_at，再按 id）。
	List(ctx context.Context, filter ApplicationFilter) ([]database.Application, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *database.Document) error
	Get(ctx context.Context, id string) (*database.Document, error)
	ListByApplication(ctx context.Context, applicationID string) ([]database.Document, error)
}

type ReviewStore interface {
	// Upsert 以 (ApplicationID, ReviewerID) 为键；已存在时保留 ID 与 CreatedAt。
	Upsert(ctx context.Context, review *database.Review) (*database.Review, error)
	Get(ctx context.Context, applicationID, reviewerID string) (*database.Review, error)
	ListByApplication(ctx context.Context, applicationID string) ([]database.Review, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]database.Review, error)
}

type AuditLogStore interface {
	Append(ctx context.Context, entry *database.AuditLog) error
	// List 按插入顺序倒序分页（created_at，再按 id），并返回总条数。
	List(ctx context.Context, limit, offset int) ([]database.AuditLog, int64, error)
}
