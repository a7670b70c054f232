package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"cohortflow/internal/api/middleware"
	"cohortflow/internal/auth"
	"cohortflow/internal/config"
	"cohortflow/internal/portal"
	"cohortflow/internal/store"
)

// Deps 汇总路由所需的组件。
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Portal  *portal.Service
	Issuer  *auth.Issuer
	Cache   authCache
	Pubsub  notifySubscriber
	Storage documentStorage
	Logger  *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	authHandler := NewAuthHandler(deps.Store.Users(), deps.Issuer, deps.Cache, deps.Logger, deps.Config.Auth)
	portalHandler := NewPortalHandler(deps.Portal)
	documentHandler := NewDocumentHandler(deps.Portal, deps.Storage, deps.Logger, deps.Config.Upload)
	wsHandler := NewWsHandler(deps.Pubsub, deps.Issuer, deps.Logger, deps.Config.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Issuer)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware, passwordGate)

		applicantGroup := protected.Group("/applicant")
		portalHandler.registerApplicant(applicantGroup)
		applicantGroup.POST("/applications/:id/documents", documentHandler.Upload)

		protected.GET("/documents/:id/download-link", documentHandler.DownloadLink)

		portalHandler.registerReviewer(protected.Group("/reviewer"))
		portalHandler.registerCoordinator(protected.Group("/coordinator"))
	}
}
