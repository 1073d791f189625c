package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

// FriendHandler manages friend relationships.
type FriendHandler struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewFriendHandler constructs a FriendHandler.
func NewFriendHandler(db *gorm.DB, hub *realtime.Hub) *FriendHandler {
	return &FriendHandler{db: db, hub: hub}
}

// friendRequestBody defines the request body for sending a friend request.
type friendRequestBody struct {
	UserID uint64 `json:"user_id"`
}

// Request sends a friend request to another user.
func (h *FriendHandler) Request(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body friendRequestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	if body.UserID == 0 || body.UserID == userID {
		apierr.Validation(c, "invalid target user")
		return
	}
	ctx := c.Request.Context()

	var target models.User
	if errFind := h.db.WithContext(ctx).First(&target, body.UserID).Error; errFind != nil {
		apierr.Validation(c, "unknown target user")
		return
	}

	var existing models.Friendship
	errExisting := h.db.WithContext(ctx).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
			userID, body.UserID, body.UserID, userID).
		Take(&existing).Error
	if errExisting == nil {
		apierr.Validation(c, "relationship already exists")
		return
	}
	if !errors.Is(errExisting, gorm.ErrRecordNotFound) {
		apierr.Infrastructure(c, "query failed")
		return
	}

	friendship := models.Friendship{
		RequesterID: userID,
		AddresseeID: body.UserID,
		Status:      models.FriendshipPending,
	}
	if errCreate := h.db.WithContext(ctx).Create(&friendship).Error; errCreate != nil {
		apierr.Infrastructure(c, "create friend request failed")
		return
	}

	h.hub.Publish([]uint64{body.UserID}, realtime.EventFriendRequested, gin.H{
		"friendship_id": friendship.ID,
		"requester_id":  userID,
	})
	c.JSON(http.StatusCreated, gin.H{"id": friendship.ID, "status": friendship.Status})
}

// Accept accepts a pending friend request addressed to the caller.
func (h *FriendHandler) Accept(c *gin.Context) {
	h.respond(c, models.FriendshipAccepted)
}

// Decline declines a pending friend request addressed to the caller.
func (h *FriendHandler) Decline(c *gin.Context) {
	h.respond(c, models.FriendshipDeclined)
}

// respond transitions a pending request addressed to the caller.
func (h *FriendHandler) respond(c *gin.Context, status string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var friendship models.Friendship
	errFind := h.db.WithContext(ctx).
		Where("id = ? AND addressee_id = ? AND status = ?", id, userID, models.FriendshipPending).
		Take(&friendship).Error
	if errFind != nil {
		apierr.NotFound(c)
		return
	}

	if errUpdate := h.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("id = ?", friendship.ID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		apierr.Infrastructure(c, "update friendship failed")
		return
	}

	if status == models.FriendshipAccepted {
		h.hub.Publish([]uint64{friendship.RequesterID}, realtime.EventFriendAccepted, gin.H{
			"friendship_id": friendship.ID,
			"addressee_id":  userID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Block marks a relationship involving the caller as blocked. Blocked rows
// keep existing, so the other side cannot re-request.
func (h *FriendHandler) Block(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Friendship{}).
		Where("id = ? AND (requester_id = ? OR addressee_id = ?) AND status <> ?",
			id, userID, userID, models.FriendshipBlocked).
		Updates(map[string]any{"status": models.FriendshipBlocked, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apierr.Infrastructure(c, "block friendship failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": models.FriendshipBlocked})
}

// Remove deletes an accepted friendship in either direction, or a pending
// request the caller sent.
func (h *FriendHandler) Remove(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND (requester_id = ? OR addressee_id = ?)", id, userID, userID).
		Delete(&models.Friendship{})
	if res.Error != nil {
		apierr.Infrastructure(c, "remove friendship failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// List returns the caller's relationships, optionally filtered by status.
func (h *FriendHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	q := h.db.WithContext(c.Request.Context()).Model(&models.Friendship{}).
		Where("requester_id = ? OR addressee_id = ?", userID, userID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var rows []models.Friendship
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list friendships failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		friendID := row.RequesterID
		if friendID == userID {
			friendID = row.AddresseeID
		}
		out = append(out, gin.H{
			"id":         row.ID,
			"friend_id":  friendID,
			"incoming":   row.AddresseeID == userID,
			"status":     row.Status,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"friendships": out})
}
