package api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cohortflow/internal/api/middleware"
	"cohortflow/internal/errcode"
	"cohortflow/internal/portal"
)

// PortalHandler 把 portal.Service 的过程挂到 HTTP 路由上；角色校验全部在 portal 内完成。
type PortalHandler struct {
	svc *portal.Service
}

func NewPortalHandler(svc *portal.Service) *PortalHandler {
	return &PortalHandler{svc: svc}
}

func setApplicationRef(c *gin.Context, in *portal.ApplicationRef) { in.ApplicationID = c.Param("id") }
func setProgramRef(c *gin.Context, in *portal.ProgramRef)         { in.ProgramID = c.Param("id") }
func setDocumentRef(c *gin.Context, in *portal.DocumentRef)       { in.DocumentID = c.Param("id") }

func (h *PortalHandler) registerApplicant(g *gin.RouterGroup) {
	g.GET("/profile", serveOK(h.svc.GetProfile, noInput[portal.Empty]))
	g.PUT("/profile", serveOK(h.svc.UpdateProfile, jsonBody[portal.UpdateProfileInput](nil)))
	g.GET("/programs", serveOK(h.svc.ListOpenPrograms, noInput[portal.Empty]))
	g.GET("/applications", serveOK(h.svc.ListMyApplications, noInput[portal.Empty]))
	g.POST("/applications", serveCreated(h.svc.CreateApplication, jsonBody[portal.CreateApplicationInput](nil)))
	g.GET("/applications/:id", serveOK(h.svc.GetMyApplication, pathOnly(setApplicationRef)))
	g.PUT("/applications/:id", serveOK(h.svc.UpdateApplication, jsonBody(func(c *gin.Context, in *portal.UpdateApplicationInput) {
		in.ApplicationID = c.Param("id")
	})))
	g.POST("/applications/:id/submit", serveOK(h.svc.SubmitApplication, pathOnly(setApplicationRef)))
}

func (h *PortalHandler) registerReviewer(g *gin.RouterGroup) {
	g.GET("/queue", serveOK(h.svc.ListReviewQueue, noInput[portal.Empty]))
	g.GET("/stats", serveOK(h.svc.GetReviewerStats, noInput[portal.Empty]))
	g.GET("/applications/:id", serveOK(h.svc.GetApplicationForReview, pathOnly(setApplicationRef)))
	g.GET("/applications/:id/review", serveOK(h.svc.GetMyReview, pathOnly(setApplicationRef)))
	g.PUT("/applications/:id/review", serveOK(h.svc.SubmitReview, jsonBody(func(c *gin.Context, in *portal.SubmitReviewInput) {
		in.ApplicationID = c.Param("id")
	})))
}

func (h *PortalHandler) registerCoordinator(g *gin.RouterGroup) {
	g.GET("/dashboard", serveOK(h.svc.GetDashboardStats, noInput[portal.Empty]))
	g.GET("/programs", serveOK(h.svc.ListPrograms, noInput[portal.Empty]))
	g.POST("/programs", serveCreated(h.svc.CreateProgram, jsonBody[portal.CreateProgramInput](nil)))
	g.GET("/programs/:id", serveOK(h.svc.GetProgram, pathOnly(setProgramRef)))
	g.PUT("/programs/:id", serveOK(h.svc.UpdateProgram, jsonBody(func(c *gin.Context, in *portal.UpdateProgramInput) {
		in.ProgramID = c.Param("id")
	})))
	g.GET("/programs/:id/pipeline", serveOK(h.svc.GetPipelineData, pathOnly(setProgramRef)))
	g.GET("/programs/:id/export", h.ExportApplications)
	g.POST("/programs/:id/export-jobs", serve(h.svc.RequestExportJob, pathOnly(func(c *gin.Context, in *portal.ExportJobInput) {
		in.ProgramID = c.Param("id")
		in.CorrelationID = middleware.GetCorrelationID(c)
	}), http.StatusAccepted))
	g.PUT("/applications/:id/status", serveOK(h.svc.UpdateApplicationStatus, jsonBody(func(c *gin.Context, in *portal.UpdateStatusInput) {
		in.ApplicationID = c.Param("id")
	})))
	g.GET("/audit-logs", serveOK(h.svc.GetAuditLogs, auditLogsQuery))
}

// ExportApplications 以附件形式返回 CSV。
func (h *PortalHandler) ExportApplications(c *gin.Context) {
	file, err := h.svc.ExportApplications(c.Request.Context(), middleware.SessionFromContext(c), portal.ProgramRef{ProgramID: c.Param("id")})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// auditLogsQuery 解析 ?limit=&offset=；缺省值由 portal 决定。
func auditLogsQuery(c *gin.Context) (portal.AuditLogsInput, error) {
	var in portal.AuditLogsInput
	for name, dst := range map[string]**int{"limit": &in.Limit, "offset": &in.Offset} {
		raw, present := c.GetQuery(name)
		if !present || raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return in, errcode.NewValidationf("invalid %s: %q", name, raw)
		}
		*dst = &v
	}
	return in, nil
}
