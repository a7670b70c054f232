package errcode

import (
	"errors"
	"fmt"
)

// 错误码约定：
// - 0：无错误
// - 4xxx：调用方可修正的错误（鉴权、缺失、校验）
// - 5xxx：系统错误
const (
	OK                = 0
	Validation        = 4000
	InvalidTransition = 4001
	Unauthenticated   = 4010
	Forbidden         = 4030
	NotFoundCode      = 4040
	SystemError       = 5000
)

// Kind 是机器可读的错误类别。
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindInternal        Kind = "internal"
)

// Error 是所有业务过程向调用方返回的错误类型。
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewUnauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Code: Unauthenticated, Message: "unauthorized"}
}

func NewForbidden(msg string) *Error {
	if msg == "" {
		msg = "forbidden"
	}
	return &Error{Kind: KindForbidden, Code: Forbidden, Message: msg}
}

// NotFound 构造 "<entity> not found" 错误。
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: NotFoundCode, Message: entity + " not found"}
}

func NewValidation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: Validation, Message: msg}
}

func NewValidationf(format string, args ...any) *Error {
	return NewValidation(fmt.Sprintf(format, args...))
}

// NewInvalidTransition 表示状态机拒绝的迁移。
func NewInvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    InvalidTransition,
		Message: fmt.Sprintf("invalid status transition from %s to %s", from, to),
	}
}

func NewInternal(err error) *Error {
	return &Error{Kind: KindInternal, Code: SystemError, Message: "internal error", Err: err}
}

// As 取出错误链中的 *Error。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误类别，未知错误视为 internal。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
