package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cohortflow/internal/api/middleware"
	"cohortflow/internal/errcode"
	"cohortflow/internal/metrics"
)

type errorBody struct {
	Error string       `json:"error"`
	Kind  errcode.Kind `json:"kind"`
	Code  int          `json:"code"`
}

func statusForKind(kind errcode.Kind) int {
	switch kind {
	case errcode.KindUnauthenticated:
		return http.StatusUnauthorized
	case errcode.KindForbidden:
		return http.StatusForbidden
	case errcode.KindNotFound:
		return http.StatusNotFound
	case errcode.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 把业务错误渲染为 {"error","kind","code"}；未知错误按 internal 处理并记录日志。
func RespondError(c *gin.Context, err error) {
	e, ok := errcode.As(err)
	if !ok {
		e = errcode.NewInternal(err)
	}
	if e.Kind == errcode.KindInternal {
		middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
	}
	c.Set(metrics.ErrorKindKey, string(e.Kind))
	c.AbortWithStatusJSON(statusForKind(e.Kind), errorBody{Error: e.Message, Kind: e.Kind, Code: e.Code})
}

func Error(c *gin.Context, status int, kind errcode.Kind, code int, msg string) {
	c.Set(metrics.ErrorKindKey, string(kind))
	c.JSON(status, errorBody{Error: msg, Kind: kind, Code: code})
}

func Unauthorized(c *gin.Context)           { RespondError(c, errcode.NewUnauthenticated()) }
func BadRequest(c *gin.Context, msg string) { RespondError(c, errcode.NewValidation(msg)) }
func Forbidden(c *gin.Context, msg string)  { RespondError(c, errcode.NewForbidden(msg)) }

func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, errcode.KindValidation, errcode.Validation, msg)
}

func TooManyRequests(c *gin.Context, msg string) {
	Error(c, http.StatusTooManyRequests, errcode.KindForbidden, errcode.Forbidden, msg)
}
