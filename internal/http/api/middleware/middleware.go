package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/config"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/ratelimit"
	"github.com/cloudez/cloudez/internal/security"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID        = "userID"
	ContextUsername      = "username"
	ContextAdminID       = "adminID"
	ContextAdminUsername = "adminUsername"
	ContextIsSuperAdmin  = "adminIsSuperAdmin"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// UserAuth validates user JWTs and loads the user into the request context.
func UserAuth(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			apierr.AuthRequired(c, "missing or malformed authorization header")
			return
		}
		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			apierr.AuthRequired(c, "invalid token")
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			apierr.AuthRequired(c, "account not found")
			return
		}
		if !user.Active || user.Disabled {
			apierr.AuthRequired(c, "account disabled")
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Next()
	}
}

// AdminAuth validates admin JWTs and loads admin context.
func AdminAuth(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			apierr.AuthRequired(c, "missing or malformed authorization header")
			return
		}
		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			apierr.AuthRequired(c, "invalid token")
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			apierr.AuthRequired(c, "admin not found")
			return
		}
		if !admin.Active {
			apierr.AuthRequired(c, "admin disabled")
			return
		}

		c.Set(ContextAdminID, admin.ID)
		c.Set(ContextAdminUsername, admin.Username)
		c.Set(ContextIsSuperAdmin, admin.IsSuperAdmin)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user ID from the request context.
func CurrentUserID(c *gin.Context) (uint64, bool) {
	raw, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := raw.(uint64)
	return id, ok && id != 0
}

// CurrentAdminID returns the authenticated admin ID from the request context.
func CurrentAdminID(c *gin.Context) (uint64, bool) {
	raw, exists := c.Get(ContextAdminID)
	if !exists {
		return 0, false
	}
	id, ok := raw.(uint64)
	return id, ok && id != 0
}

// RateLimit guards one operation type for the authenticated user. Quota
// denials return 429 with the window reset time; store failures return 503 so
// clients never mistake an outage for a denial.
func RateLimit(service *ratelimit.Service, operationType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := CurrentUserID(c)
		if !ok {
			apierr.AuthRequired(c, "missing principal")
			return
		}
		result, errCheck := service.CheckAndRecord(c.Request.Context(), userID, operationType)
		if errCheck != nil {
			apierr.Infrastructure(c, "rate limit check failed")
			return
		}
		if !result.Allowed {
			apierr.RateLimited(c, result.ResetAt)
			return
		}
		c.Next()
	}
}
