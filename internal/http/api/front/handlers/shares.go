package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

// ShareHandler manages per-user file share grants.
type ShareHandler struct {
	db      *gorm.DB
	checker *authz.Checker
	hub     *realtime.Hub
}

// NewShareHandler constructs a ShareHandler.
func NewShareHandler(db *gorm.DB, checker *authz.Checker, hub *realtime.Hub) *ShareHandler {
	return &ShareHandler{db: db, checker: checker, hub: hub}
}

// createShareRequest defines the request body for share creation.
type createShareRequest struct {
	UserID uint64 `json:"user_id"`
}

// Create grants another user access to the caller's file and flips the file
// to shared visibility if it was private.
func (h *ShareHandler) Create(c *gin.Context) {
	file, userID, ok := h.loadOwnedFile(c)
	if !ok {
		return
	}
	var body createShareRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	if body.UserID == 0 || body.UserID == userID {
		apierr.Validation(c, "invalid grantee")
		return
	}
	ctx := c.Request.Context()

	var grantee models.User
	if errFind := h.db.WithContext(ctx).First(&grantee, body.UserID).Error; errFind != nil {
		apierr.Validation(c, "unknown grantee")
		return
	}

	share := models.FileShare{FileID: file.ID, GranteeID: body.UserID}
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&share).Error; errCreate != nil {
			return errCreate
		}
		if file.Visibility == models.VisibilityPrivate {
			return tx.Model(&models.File{}).Where("id = ?", file.ID).
				Update("visibility", models.VisibilityShared).Error
		}
		return nil
	})
	if errTx != nil {
		apierr.Validation(c, "already shared with that user")
		return
	}

	h.hub.Publish([]uint64{body.UserID}, realtime.EventFileShared, gin.H{
		"file_id":   file.ID,
		"file_name": file.Name,
		"owner_id":  file.OwnerID,
	})
	c.JSON(http.StatusCreated, gin.H{"id": share.ID, "file_id": file.ID, "grantee_id": share.GranteeID})
}

// List returns the grants on the caller's file.
func (h *ShareHandler) List(c *gin.Context) {
	file, _, ok := h.loadOwnedFile(c)
	if !ok {
		return
	}
	var rows []models.FileShare
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("file_id = ?", file.ID).
		Order("created_at ASC").
		Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list shares failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{"id": row.ID, "grantee_id": row.GranteeID, "created_at": row.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

// Delete revokes one grant on the caller's file.
func (h *ShareHandler) Delete(c *gin.Context) {
	file, _, ok := h.loadOwnedFile(c)
	if !ok {
		return
	}
	granteeID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("user_id")), 10, 64)
	if errParse != nil {
		apierr.Validation(c, "invalid user id")
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("file_id = ? AND grantee_id = ?", file.ID, granteeID).
		Delete(&models.FileShare{})
	if res.Error != nil {
		apierr.Infrastructure(c, "delete share failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadOwnedFile loads the :id file and requires the caller to own it.
func (h *ShareHandler) loadOwnedFile(c *gin.Context) (*models.File, uint64, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, 0, false
	}
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		apierr.Validation(c, "invalid id")
		return nil, 0, false
	}
	var file models.File
	errFind := h.db.WithContext(c.Request.Context()).First(&file, id).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apierr.NotFound(c)
			return nil, 0, false
		}
		apierr.Infrastructure(c, "query failed")
		return nil, 0, false
	}
	if !authz.IsOwner(userID, file.OwnerID) {
		apierr.NotFound(c)
		return nil, 0, false
	}
	return &file, userID, true
}
