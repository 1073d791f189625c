package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/http/api/middleware"
)

// currentUser returns the authenticated user ID or aborts with 401.
func currentUser(c *gin.Context) (uint64, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return 0, false
	}
	return userID, true
}

// pathID parses a numeric path parameter or aborts with a validation error.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		apierr.Validation(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
