package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/config"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/http/api/middleware"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/ratelimit"
	"github.com/cloudez/cloudez/internal/security"
	"github.com/cloudez/cloudez/internal/settings"
)

// AuthHandler manages user registration and sessions.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Service) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, limiter: limiter}
}

// registerRequest defines the request body for registration.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(c *gin.Context) {
	if !settings.SignupEnabled() {
		apierr.Validation(c, "registration is closed")
		return
	}
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		apierr.Validation(c, "missing username")
		return
	}
	password := strings.TrimSpace(body.Password)
	if len(password) < 6 {
		apierr.Validation(c, "password must be at least 6 characters")
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		apierr.Infrastructure(c, "hash password failed")
		return
	}

	user := models.User{
		Username:     username,
		Name:         strings.TrimSpace(body.Name),
		Password:     hash,
		StorageQuota: settings.NewAccountStorageQuota(),
		Active:       true,
	}
	// Store NULL rather than "" so accounts without an email never collide
	// on the unique index.
	if email := strings.TrimSpace(body.Email); email != "" {
		user.Email = &email
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		apierr.Validation(c, "username or email already taken")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.EmailAddress(),
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a session token. Attempts against an
// existing account are rate limited before the password check so failed
// guesses consume the budget.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || strings.TrimSpace(body.Password) == "" {
		apierr.Validation(c, "missing credentials")
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apierr.AuthRequired(c, "invalid credentials")
			return
		}
		apierr.Infrastructure(c, "login failed")
		return
	}

	result, errCheck := h.limiter.CheckAndRecord(ctx, user.ID, "login_attempt")
	if errCheck != nil {
		apierr.Infrastructure(c, "rate limit check failed")
		return
	}
	if !result.Allowed {
		apierr.RateLimited(c, result.ResetAt)
		return
	}

	if !user.Active || user.Disabled || !security.VerifyPassword(user.Password, body.Password) {
		apierr.AuthRequired(c, "invalid credentials")
		return
	}

	token, errSign := security.SignUserToken(h.jwtCfg.Secret, user.ID, h.jwtCfg.Expiry)
	if errSign != nil {
		apierr.Infrastructure(c, "sign token failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.EmailAddress(),
			"name":     user.Name,
		},
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		apierr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.EmailAddress(),
		"name":          user.Name,
		"public_key":    user.PublicKey,
		"storage_used":  user.StorageUsed,
		"storage_quota": user.StorageQuota,
		"created_at":    user.CreatedAt,
	})
}

// MyRateLimits reports the caller's usage for every configured operation.
func (h *AuthHandler) MyRateLimits(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return
	}
	statuses, errStatus := h.limiter.Status(c.Request.Context(), userID)
	if errStatus != nil {
		apierr.Infrastructure(c, "rate limit status failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": statuses})
}
