package database

import (
	"time"

	"gorm.io/datatypes"

	"cohortflow/internal/domain"
)

// User 表示门户账号。Role 创建后不可变。
type User struct {
	ID                 string            `gorm:"type:uuid;primaryKey" json:"id"`
	Email              string            `gorm:"uniqueIndex;size:255" json:"email"`
	Name               string            `gorm:"size:255" json:"name"`
	Role               domain.Role       `gorm:"size:32;index" json:"role"`
	PasswordHash       string            `gorm:"size:255" json:"-"`
	MustChangePassword bool              `gorm:"default:false" json:"must_change_password"`
	Profile            *ApplicantProfile `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// ApplicantProfile 是申请人的个人资料，与 User 一对一。
type ApplicantProfile struct {
	ID               string                  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string                  `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	FirstName        string                  `gorm:"size:128" json:"first_name"`
	LastName         string                  `gorm:"size:128" json:"last_name"`
	Email            string                  `gorm:"size:255" json:"email"`
	Phone            string                  `gorm:"size:64" json:"phone"`
	DateOfBirth      string                  `gorm:"size:32" json:"date_of_birth"`
	Address          string                  `gorm:"size:255" json:"address"`
	City             string                  `gorm:"size:128" json:"city"`
	State            string                  `gorm:"size:128" json:"state"`
	ZipCode          string                  `gorm:"size:32" json:"zip_code"`
	EmergencyContact domain.EmergencyContact `gorm:"embedded;embeddedPrefix:emergency_" json:"emergency_contact"`
	Applications     []Application           `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// Program 表示一个招募批次，Rubric 按值内嵌（JSON 列）。
type Program struct {
	ID                  string                            `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string                            `gorm:"size:255" json:"name"`
	Description         string                            `gorm:"type:text" json:"description"`
	StartDate           time.Time                         `json:"start_date"`
	EndDate             time.Time                         `json:"end_date"`
	ApplicationDeadline time.Time                         `json:"application_deadline"`
	Capacity            int                               `json:"capacity"`
	Requirements        datatypes.JSONSlice[string]       `json:"requirements"`
	Rubric              datatypes.JSONType[domain.Rubric] `json:"rubric"`
	Status              domain.ProgramStatus              `gorm:"size:32;index" json:"status"`
	CreatorID           string                            `gorm:"type:uuid;index" json:"creator_id"`
	Applications        []Application                     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt           time.Time                         `json:"created_at"`
	UpdatedAt           time.Time                         `json:"updated_at"`
}

// Application 属于一个申请人和一个项目，初始状态为 draft。
type Application struct {
	ID          string                                `gorm:"type:uuid;primaryKey" json:"id"`
	ProgramID   string                                `gorm:"type:uuid;index" json:"program_id"`
	ApplicantID string                                `gorm:"type:uuid;index" json:"applicant_id"`
	Status      domain.ApplicationStatus              `gorm:"size:32;index" json:"status"`
	Responses   datatypes.JSONType[map[string]string] `json:"responses"`
	SubmittedAt *time.Time                            `json:"submitted_at,omitempty"`
	Documents   []Document                            `gorm:"constraint:OnDelete:CASCADE" json:"documents"`
	Reviews     []Review                              `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time                             `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time                             `json:"updated_at"`
}

// Document 只记录对象存储中的定位信息，上传后不可修改。
type Document struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID string    `gorm:"type:uuid;index" json:"application_id"`
	Name          string    `gorm:"size:255" json:"name"`
	MediaType     string    `gorm:"size:128" json:"media_type"`
	Size          int64     `json:"size"`
	ObjectKey     string    `gorm:"size:512" json:"object_key"`
	UploadedBy    string    `gorm:"type:uuid;index" json:"uploaded_by"`
	UploadedAt    time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

// Review 每个 (ApplicationID, ReviewerID) 至多一条。
type Review struct {
	ID             string                             `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID  string                             `gorm:"type:uuid;uniqueIndex:idx_reviews_application_reviewer" json:"application_id"`
	ReviewerID     string                             `gorm:"type:uuid;uniqueIndex:idx_reviews_application_reviewer;index" json:"reviewer_id"`
	ProgramID      string                             `gorm:"type:uuid;index" json:"program_id"`
	Scores         datatypes.JSONType[map[string]int] `json:"scores"`
	TotalScore     float64                            `json:"total_score"`
	Comments       string                             `gorm:"type:text" json:"comments"`
	Recommendation domain.Recommendation              `gorm:"size:32" json:"recommendation"`
	SubmittedAt    time.Time                          `json:"submitted_at"`
	CreatedAt      time.Time                          `json:"created_at"`
	UpdatedAt      time.Time                          `json:"updated_at"`
}

// AuditLog 只追加，不更新也不删除。
type AuditLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"type:uuid;index" json:"actor_id"`
	ActorName  string    `gorm:"size:255" json:"actor_name"`
	Action     string    `gorm:"size:128" json:"action"`
	EntityType string    `gorm:"size:64;index:idx_audit_entity" json:"entity_type"`
	EntityID   string    `gorm:"size:64;index:idx_audit_entity" json:"entity_id"`
	Detail     string    `gorm:"type:text" json:"detail"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&User{},
		&ApplicantProfile{},
		&Program{},
		&Application{},
		&Document{},
		&Review{},
		&AuditLog{},
	}
}
