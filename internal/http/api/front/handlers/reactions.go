package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

const maxEmojiLength = 16

// ReactionHandler manages emoji reactions on messages.
type ReactionHandler struct {
	db      *gorm.DB
	checker *authz.Checker
	hub     *realtime.Hub
}

// NewReactionHandler constructs a ReactionHandler.
func NewReactionHandler(db *gorm.DB, checker *authz.Checker, hub *realtime.Hub) *ReactionHandler {
	return &ReactionHandler{db: db, checker: checker, hub: hub}
}

// reactionRequest defines the request body for adding or removing a reaction.
type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// Add attaches an emoji reaction to a message. Duplicate reactions from the
// same user are idempotent.
func (h *ReactionHandler) Add(c *gin.Context) {
	conversationID, messageID, userID, ok := h.requireMessage(c)
	if !ok {
		return
	}
	emoji, ok := bindEmoji(c)
	if !ok {
		return
	}

	reaction := models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	res := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
		DoNothing: true,
	}).Create(&reaction)
	if res.Error != nil {
		apierr.Infrastructure(c, "add reaction failed")
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusOK, gin.H{"ok": true, "existing": true})
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventReactionAdded, gin.H{
		"message_id":      messageID,
		"conversation_id": conversationID,
		"user_id":         userID,
		"emoji":           emoji,
	})
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// Remove deletes the caller's reaction from a message.
func (h *ReactionHandler) Remove(c *gin.Context) {
	conversationID, messageID, userID, ok := h.requireMessage(c)
	if !ok {
		return
	}
	emoji := strings.TrimSpace(c.Query("emoji"))
	if emoji == "" {
		apierr.Validation(c, "missing emoji")
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.Reaction{})
	if res.Error != nil {
		apierr.Infrastructure(c, "remove reaction failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventReactionRemoved, gin.H{
		"message_id":      messageID,
		"conversation_id": conversationID,
		"user_id":         userID,
		"emoji":           emoji,
	})
	c.Status(http.StatusNoContent)
}

// List returns all reactions on a message grouped as rows.
func (h *ReactionHandler) List(c *gin.Context) {
	_, messageID, _, ok := h.requireMessage(c)
	if !ok {
		return
	}
	var rows []models.Reaction
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list reactions failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{"user_id": row.UserID, "emoji": row.Emoji, "created_at": row.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"reactions": out})
}

// bindEmoji reads and validates the emoji body field.
func bindEmoji(c *gin.Context) (string, bool) {
	var body reactionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return "", false
	}
	emoji := strings.TrimSpace(body.Emoji)
	if emoji == "" || len(emoji) > maxEmojiLength || !utf8.ValidString(emoji) {
		apierr.Validation(c, "invalid emoji")
		return "", false
	}
	return emoji, true
}

// requireMessage resolves :id/:message_id and enforces conversation membership.
func (h *ReactionHandler) requireMessage(c *gin.Context) (uint64, uint64, uint64, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return 0, 0, 0, false
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, 0, false
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return 0, 0, 0, false
	}
	ctx := c.Request.Context()

	isMember, errMember := h.checker.IsConversationMember(ctx, userID, conversationID)
	if errMember != nil {
		apierr.Infrastructure(c, "membership check failed")
		return 0, 0, 0, false
	}
	if !isMember {
		apierr.NotFound(c)
		return 0, 0, 0, false
	}

	var message models.Message
	if errFind := h.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Take(&message).Error; errFind != nil {
		apierr.NotFound(c)
		return 0, 0, 0, false
	}
	return conversationID, messageID, userID, true
}
