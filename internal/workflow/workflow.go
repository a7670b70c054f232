// Package workflow holds the application status transition table.
package workflow

import (
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
)

// coordinatorStates 之间的任意迁移均由协调员决定，不设前置条件（例如最少评审数）。
var coordinatorStates = map[domain.ApplicationStatus]bool{
	domain.StatusUnderReview: true,
	domain.StatusInterview:   true,
	domain.StatusAccepted:    true,
	domain.StatusRejected:    true,
	domain.StatusWaitlisted:  true,
}

// ValidateTransition 判断 actor 能否把申请从 current 迁移到 requested。
// 角色不符返回 forbidden；迁移不在表中返回 InvalidTransition。
func ValidateTransition(current, requested domain.ApplicationStatus, actor domain.Role) error {
	if !requested.Valid() {
		return errcode.NewValidationf("unknown application status %q", requested)
	}
	if current == requested {
		return errcode.NewInvalidTransition(string(current), string(requested))
	}

	switch actor {
	case domain.RoleApplicant:
		if current == domain.StatusDraft && requested == domain.StatusSubmitted {
			return nil
		}
		if requested != domain.StatusSubmitted {
			return errcode.NewForbidden("only coordinators can change application status")
		}
	case domain.RoleCoordinator:
		if current == domain.StatusSubmitted && requested == domain.StatusUnderReview {
			return nil
		}
		if coordinatorStates[current] && coordinatorStates[requested] {
			return nil
		}
	default:
		return errcode.NewForbidden("role cannot change application status")
	}
	return errcode.NewInvalidTransition(string(current), string(requested))
}

// Allowed lists the statuses actor may move an application in current to.
func Allowed(current domain.ApplicationStatus, actor domain.Role) []domain.ApplicationStatus {
	var out []domain.ApplicationStatus
	for _, next := range domain.ApplicationStatuses {
		if ValidateTransition(current, next, actor) == nil {
			out = append(out, next)
		}
	}
	return out
}
