// Package apierr renders the API error taxonomy. Authorization denials are
// reported as not-found so the existence of other users' private resources
// never leaks.
package apierr

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error kinds surfaced to clients.
const (
	KindAuthenticationRequired = "authentication_required"
	KindNotFound               = "not_found"
	KindRateLimited            = "rate_limited"
	KindValidation             = "validation"
	KindInfrastructure         = "infrastructure"
)

// AuthRequired aborts with 401.
func AuthRequired(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"kind": KindAuthenticationRequired, "error": message})
}

// NotFound aborts with 404. Used both for genuinely missing resources and for
// resources the caller may not see.
func NotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"kind": KindNotFound, "error": "not found"})
}

// RateLimited aborts with 429 and tells the caller when the window resets.
func RateLimited(c *gin.Context, resetAt time.Time) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"kind":     KindRateLimited,
		"error":    "rate limit exceeded",
		"reset_at": resetAt.UTC(),
	})
}

// Validation aborts with 400 before any storage or quota mutation.
func Validation(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": KindValidation, "error": message})
}

// Infrastructure aborts with 503 so callers can tell transient failures apart
// from denials.
func Infrastructure(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"kind": KindInfrastructure, "error": message})
}
