package domain

// Role 表示账号在门户中的角色，创建后不可变更。
type Role string

const (
	RoleApplicant   Role = "applicant"
	RoleReviewer    Role = "reviewer"
	RoleCoordinator Role = "coordinator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleApplicant, RoleReviewer, RoleCoordinator:
		return true
	}
	return false
}

// ApplicationStatus 是申请在流水线中的状态。
type ApplicationStatus string

const (
	StatusDraft       ApplicationStatus = "draft"
	StatusSubmitted   ApplicationStatus = "submitted"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusInterview   ApplicationStatus = "interview"
	StatusAccepted    ApplicationStatus = "accepted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusWaitlisted  ApplicationStatus = "waitlisted"
)

// ApplicationStatuses lists every status in lifecycle order.
var ApplicationStatuses = []ApplicationStatus{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusInterview,
	StatusAccepted,
	StatusRejected,
	StatusWaitlisted,
}

func (s ApplicationStatus) Valid() bool {
	for _, known := range ApplicationStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a decision state.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusWaitlisted
}

// Private reports whether only the owning applicant may see an application in status s.
func (s ApplicationStatus) Private() bool {
	return s == StatusDraft
}

// ProgramStatus 是项目的生命周期状态。
type ProgramStatus string

const (
	ProgramDraft    ProgramStatus = "draft"
	ProgramOpen     ProgramStatus = "open"
	ProgramClosed   ProgramStatus = "closed"
	ProgramArchived ProgramStatus = "archived"
)

func (s ProgramStatus) Valid() bool {
	switch s {
	case ProgramDraft, ProgramOpen, ProgramClosed, ProgramArchived:
		return true
	}
	return false
}

// Recommendation 是评审人的建议结果，与申请的实际状态无关。
type Recommendation string

const (
	RecommendAccept    Recommendation = "accept"
	RecommendReject    Recommendation = "reject"
	RecommendWaitlist  Recommendation = "waitlist"
	RecommendInterview Recommendation = "interview"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAccept, RecommendReject, RecommendWaitlist, RecommendInterview:
		return true
	}
	return false
}
