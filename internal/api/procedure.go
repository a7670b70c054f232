package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cohortflow/internal/access"
	"cohortflow/internal/api/middleware"
	"cohortflow/internal/errcode"
)

// serve 把 portal.Service 的一个过程适配为 gin handler：绑定输入、带会话调用、渲染结果或错误。
func serve[In, Out any](proc func(context.Context, *access.Session, In) (Out, error), bind func(*gin.Context) (In, error), status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, err := bind(c)
		if err != nil {
			RespondError(c, err)
			return
		}
		out, err := proc(c.Request.Context(), middleware.SessionFromContext(c), in)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(status, out)
	}
}

func serveOK[In, Out any](proc func(context.Context, *access.Session, In) (Out, error), bind func(*gin.Context) (In, error)) gin.HandlerFunc {
	return serve(proc, bind, http.StatusOK)
}

func serveCreated[In, Out any](proc func(context.Context, *access.Session, In) (Out, error), bind func(*gin.Context) (In, error)) gin.HandlerFunc {
	return serve(proc, bind, http.StatusCreated)
}

func noInput[In any](*gin.Context) (In, error) {
	var in In
	return in, nil
}

// jsonBody 解析请求体；set 在解析后补充路径参数。
func jsonBody[In any](set func(c *gin.Context, in *In)) func(*gin.Context) (In, error) {
	return func(c *gin.Context) (In, error) {
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, errcode.NewValidationf("invalid request body: %v", err)
		}
		if set != nil {
			set(c, &in)
		}
		return in, nil
	}
}

// pathOnly 只从路径参数构造输入。
func pathOnly[In any](set func(c *gin.Context, in *In)) func(*gin.Context) (In, error) {
	return func(c *gin.Context) (In, error) {
		var in In
		set(c, &in)
		return in, nil
	}
}
