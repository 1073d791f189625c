package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/config"
	dbutil "github.com/cloudez/cloudez/internal/db"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/ratelimit"
)

// RateLimitHandler manages rate limit rules and per-user counters.
type RateLimitHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Service
	rlCfg   config.RateLimitConfig
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(db *gorm.DB, limiter *ratelimit.Service, rlCfg config.RateLimitConfig) *RateLimitHandler {
	return &RateLimitHandler{db: db, limiter: limiter, rlCfg: rlCfg}
}

// ruleRequest defines the request body for rule creation and updates.
type ruleRequest struct {
	OperationType string `json:"operation_type"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	Description   string `json:"description"`
}

func (r *ruleRequest) validate() (ratelimit.Rule, string) {
	rule := ratelimit.Rule{
		OperationType: strings.TrimSpace(r.OperationType),
		MaxRequests:   r.MaxRequests,
		WindowSeconds: r.WindowSeconds,
	}
	if errValidate := rule.Validate(); errValidate != nil {
		return rule, errValidate.Error()
	}
	return rule, ""
}

// ListRules returns every configured rule.
func (h *RateLimitHandler) ListRules(c *gin.Context) {
	var rows []models.RateLimitRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("operation_type ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":             row.ID,
			"operation_type": row.OperationType,
			"max_requests":   row.MaxRequests,
			"window_seconds": row.WindowSeconds,
			"description":    row.Description,
			"updated_at":     row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// CreateRule adds a rule for a new operation type.
func (h *RateLimitHandler) CreateRule(c *gin.Context) {
	var body ruleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rule, problem := body.validate()
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	row := models.RateLimitRule{
		OperationType: rule.OperationType,
		MaxRequests:   rule.MaxRequests,
		WindowSeconds: rule.WindowSeconds,
		Description:   strings.TrimSpace(body.Description),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "operation type already configured"})
		return
	}
	h.limiter.InvalidateRules()
	c.JSON(http.StatusCreated, gin.H{"id": row.ID})
}

// UpdateRule changes the budget of an existing rule. In-flight windows keep
// counting; the new limit applies from the next check.
func (h *RateLimitHandler) UpdateRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body ruleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rule, problem := body.validate()
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.RateLimitRule{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"operation_type": rule.OperationType,
			"max_requests":   rule.MaxRequests,
			"window_seconds": rule.WindowSeconds,
			"description":    strings.TrimSpace(body.Description),
		})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update rule failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	h.limiter.InvalidateRules()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteRule removes a rule. The operation type becomes unlimited.
func (h *RateLimitHandler) DeleteRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.RateLimitRule{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete rule failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	h.limiter.InvalidateRules()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats aggregates live usage per operation type across all users. Only
// windows that have not yet expired against the database clock count.
func (h *RateLimitHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	var now int64
	query := fmt.Sprintf("SELECT %s", dbutil.UnixNowExpr(h.db))
	if errNow := h.db.WithContext(ctx).Raw(query).Scan(&now).Error; errNow != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limit store unavailable"})
		return
	}

	type operationStats struct {
		OperationType string `json:"operation_type"`
		ActiveWindows int64  `json:"active_windows"`
		ActiveUsers   int64  `json:"active_users"`
		TotalRequests int64  `json:"total_requests"`
	}
	var rows []operationStats
	if errFind := h.db.WithContext(ctx).
		Model(&models.UsageWindow{}).
		Select("operation_type, COUNT(*) AS active_windows, COUNT(DISTINCT user_id) AS active_users, COALESCE(SUM(request_count), 0) AS total_requests").
		Where("window_end > ?", now).
		Group("operation_type").
		Order("operation_type ASC").
		Scan(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "aggregate usage failed"})
		return
	}
	if rows == nil {
		rows = []operationStats{}
	}
	c.JSON(http.StatusOK, gin.H{"generated_at": now, "operations": rows})
}

// UserStatus reports a user's current usage across all operation types.
func (h *RateLimitHandler) UserStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	statuses, errStatus := h.limiter.Status(c.Request.Context(), id)
	if errStatus != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limit store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "operations": statuses})
}

// ResetUser clears all counters for a user.
func (h *RateLimitHandler) ResetUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errReset := h.limiter.Reset(c.Request.Context(), id); errReset != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limit store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Cleanup prunes expired counter rows immediately.
func (h *RateLimitHandler) Cleanup(c *gin.Context) {
	removed, errCleanup := h.limiter.Cleanup(c.Request.Context(), h.rlCfg.Retention)
	if errCleanup != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cleanup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
