package admin

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/config"
	handlers "github.com/cloudez/cloudez/internal/http/api/admin/handlers"
	"github.com/cloudez/cloudez/internal/http/api/middleware"
	"github.com/cloudez/cloudez/internal/ratelimit"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Service, rlCfg config.RateLimitConfig) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(middleware.AdminAuth(db, jwtCfg))

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	userHandler := handlers.NewUserHandler(db)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id/quota", userHandler.UpdateQuota)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)

	rateLimitHandler := handlers.NewRateLimitHandler(db, limiter, rlCfg)
	authed.GET("/rate-limits/rules", rateLimitHandler.ListRules)
	authed.POST("/rate-limits/rules", rateLimitHandler.CreateRule)
	authed.PUT("/rate-limits/rules/:id", rateLimitHandler.UpdateRule)
	authed.DELETE("/rate-limits/rules/:id", rateLimitHandler.DeleteRule)
	authed.GET("/rate-limits/stats", rateLimitHandler.Stats)
	authed.GET("/users/:id/rate-limits", rateLimitHandler.UserStatus)
	authed.POST("/users/:id/rate-limits/reset", rateLimitHandler.ResetUser)
	authed.POST("/rate-limits/cleanup", rateLimitHandler.Cleanup)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)
}
