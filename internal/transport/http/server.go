package http

import (
	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/bootstrap"
	"qingyin-guild/internal/storage"
	"qingyin-guild/internal/transport/http/handler"
	"qingyin-guild/internal/transport/http/middleware"
)

const maxMultipartMemory = 8 << 20

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(middleware.RequestLogger(app.Logger), middleware.Recovery(app.Logger))

	healthHandler := handler.NewHealthHandler(app)
	attachmentHandler := handler.NewAttachmentHandler(app.Attachments)
	authHandler := handler.NewAuthHandler(app.Auth)
	characterHandler := handler.NewCharacterHandler(app.Characters)
	moderationHandler := handler.NewModerationHandler(app.Moderation)
	themeHandler := handler.NewThemeHandler(app.Theme)

	authRequired := middleware.AuthJWT(app.Auth)
	adminRequired := middleware.RequireAdmin(app.Auth)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/uploads/*name", attachmentHandler.Serve(storage.KindScreenshot))
	router.GET("/signatures/*name", attachmentHandler.Serve(storage.KindSignature))

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authRequired, authHandler.Me)
	authGroup.PUT("/password", authRequired, authHandler.ChangePassword)
	authGroup.DELETE("/account", authRequired, authHandler.DeleteAccount)
	authGroup.PUT("/users/:id/password", authRequired, adminRequired, authHandler.ResetPassword)

	api.GET("/characters/approved", characterHandler.ListApproved)
	characterGroup := api.Group("/characters")
	characterGroup.Use(authRequired)
	characterGroup.POST("", characterHandler.Create)
	characterGroup.GET("", characterHandler.ListOwn)
	characterGroup.PUT("/:id/signature", characterHandler.UpdateSignature)
	characterGroup.POST("/:id/screenshot", characterHandler.UploadScreenshot)
	characterGroup.DELETE("/:id", characterHandler.Delete)

	adminGroup := api.Group("/admin")
	adminGroup.Use(authRequired, adminRequired)
	adminGroup.GET("/approvals", moderationHandler.ListPending)
	adminGroup.PUT("/approvals/:id", moderationHandler.Review)
	adminGroup.GET("/approvals/:id/events", moderationHandler.ListEvents)
	adminGroup.GET("/users", authHandler.ListUsers)
	adminGroup.PUT("/users/:id/password", authHandler.ResetPassword)

	api.GET("/theme", themeHandler.Get)
	api.PUT("/theme", authRequired, adminRequired, themeHandler.Set)

	return router
}
