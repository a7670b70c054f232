// Package access composes role checks in front of portal procedures.
//
// A Session is resolved by the transport (JWT middleware) and handed to every procedure;
// checks never read ambient request state, so a chain can be exercised without HTTP.
package access

import (
	"context"
	"slices"

	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
)

// Session 是外部会话提供方给出的调用者身份。
type Session struct {
	UserID string
	Name   string
	Email  string
	Role   domain.Role
}

func (s *Session) authenticated() bool {
	return s != nil && s.UserID != "" && s.Role.Valid()
}

// Check 在过程执行前校验调用者，失败时返回 *errcode.Error。
type Check func(sess *Session) error

// Authenticated rejects callers without a session.
func Authenticated() Check {
	return func(sess *Session) error {
		if !sess.authenticated() {
			return errcode.NewUnauthenticated()
		}
		return nil
	}
}

// AllowRoles 要求调用者已登录且角色在白名单内。
func AllowRoles(roles ...domain.Role) Check {
	allowed := slices.Clone(roles)
	return func(sess *Session) error {
		if !sess.authenticated() {
			return errcode.NewUnauthenticated()
		}
		if !slices.Contains(allowed, sess.Role) {
			return errcode.NewForbidden("role " + string(sess.Role) + " is not allowed")
		}
		return nil
	}
}

// Chain runs checks in order and stops at the first failure.
func Chain(checks ...Check) Check {
	return func(sess *Session) error {
		for _, check := range checks {
			if err := check(sess); err != nil {
				return err
			}
		}
		return nil
	}
}

// Wrap 返回一个先执行 checks 再调用 proc 的过程；任何检查失败时 proc 不会被调用。
func Wrap[In, Out any](proc func(context.Context, *Session, In) (Out, error), checks ...Check) func(context.Context, *Session, In) (Out, error) {
	guard := Chain(checks...)
	return func(ctx context.Context, sess *Session, in In) (Out, error) {
		if err := guard(sess); err != nil {
			var zero Out
			return zero, err
		}
		return proc(ctx, sess, in)
	}
}

var (
	Anyone                = Authenticated()
	ApplicantOnly         = AllowRoles(domain.RoleApplicant)
	ReviewerOrCoordinator = AllowRoles(domain.RoleReviewer, domain.RoleCoordinator)
	CoordinatorOnly       = AllowRoles(domain.RoleCoordinator)
)
