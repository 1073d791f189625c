package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 200
	maxMessageBodyBytes    = 64 * 1024
)

// MessageHandler manages messages within conversations.
type MessageHandler struct {
	db      *gorm.DB
	checker *authz.Checker
	hub     *realtime.Hub
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(db *gorm.DB, checker *authz.Checker, hub *realtime.Hub) *MessageHandler {
	return &MessageHandler{db: db, checker: checker, hub: hub}
}

var validContentTypes = map[string]bool{
	models.MessageText:      true,
	models.MessageFile:      true,
	models.MessageEncrypted: true,
}

// createMessageRequest defines the request body for sending a message.
type createMessageRequest struct {
	ContentType string         `json:"content_type"`
	Body        string         `json:"body"`
	Metadata    datatypes.JSON `json:"metadata"`
}

// Create sends a message into a conversation. Member-only, rate limited.
func (h *MessageHandler) Create(c *gin.Context) {
	conversationID, userID, ok := h.requireMember(c)
	if !ok {
		return
	}
	var body createMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	contentType := strings.TrimSpace(body.ContentType)
	if contentType == "" {
		contentType = models.MessageText
	}
	if !validContentTypes[contentType] {
		apierr.Validation(c, "invalid content type")
		return
	}
	if body.Body == "" {
		apierr.Validation(c, "missing body")
		return
	}
	if len(body.Body) > maxMessageBodyBytes {
		apierr.Validation(c, "body too large")
		return
	}
	ctx := c.Request.Context()

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		ContentType:    contentType,
		Body:           body.Body,
		Metadata:       body.Metadata,
	}
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&message).Error; errCreate != nil {
			return errCreate
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update("updated_at", message.CreatedAt).Error
	})
	if errTx != nil {
		apierr.Infrastructure(c, "create message failed")
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventMessageCreated, messageJSON(&message))
	c.JSON(http.StatusCreated, messageJSON(&message))
}

// List returns messages newest-first with a before-id cursor.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID, _, ok := h.requireMember(c)
	if !ok {
		return
	}
	limit := defaultMessagePageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed < 1 {
			apierr.Validation(c, "invalid limit")
			return
		}
		if parsed > maxMessagePageSize {
			parsed = maxMessagePageSize
		}
		limit = parsed
	}

	query := h.db.WithContext(c.Request.Context()).
		Where("conversation_id = ?", conversationID)
	if raw := c.Query("before"); raw != "" {
		before, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			apierr.Validation(c, "invalid before cursor")
			return
		}
		query = query.Where("id < ?", before)
	}

	var rows []models.Message
	if errFind := query.Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list messages failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, messageJSON(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// editMessageRequest defines the request body for editing a message.
type editMessageRequest struct {
	Body string `json:"body"`
}

// Edit updates the body of the caller's own message.
func (h *MessageHandler) Edit(c *gin.Context) {
	conversationID, userID, ok := h.requireMember(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	var body editMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	if body.Body == "" {
		apierr.Validation(c, "missing body")
		return
	}
	if len(body.Body) > maxMessageBodyBytes {
		apierr.Validation(c, "body too large")
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Message{}).
		Where("id = ? AND conversation_id = ? AND sender_id = ? AND deleted = ?", messageID, conversationID, userID, false).
		Updates(map[string]any{"body": body.Body, "edited": true})
	if res.Error != nil {
		apierr.Infrastructure(c, "edit message failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventMessageEdited, gin.H{
		"id":              messageID,
		"conversation_id": conversationID,
		"body":            body.Body,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete soft-deletes the caller's own message, blanking its body.
func (h *MessageHandler) Delete(c *gin.Context) {
	conversationID, userID, ok := h.requireMember(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Message{}).
		Where("id = ? AND conversation_id = ? AND sender_id = ? AND deleted = ?", messageID, conversationID, userID, false).
		Updates(map[string]any{"deleted": true, "body": ""})
	if res.Error != nil {
		apierr.Infrastructure(c, "delete message failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventMessageDeleted, gin.H{
		"id":              messageID,
		"conversation_id": conversationID,
	})
	c.Status(http.StatusNoContent)
}

// requireMember resolves the :id conversation and enforces membership.
func (h *MessageHandler) requireMember(c *gin.Context) (uint64, uint64, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return 0, 0, false
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	isMember, errMember := h.checker.IsConversationMember(c.Request.Context(), userID, conversationID)
	if errMember != nil {
		apierr.Infrastructure(c, "membership check failed")
		return 0, 0, false
	}
	if !isMember {
		apierr.NotFound(c)
		return 0, 0, false
	}
	return conversationID, userID, true
}

// messageJSON renders one message for API responses.
func messageJSON(message *models.Message) gin.H {
	body := message.Body
	if message.Deleted {
		body = ""
	}
	return gin.H{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"sender_id":       message.SenderID,
		"content_type":    message.ContentType,
		"body":            body,
		"metadata":        message.Metadata,
		"edited":          message.Edited,
		"deleted":         message.Deleted,
		"created_at":      message.CreatedAt,
	}
}
