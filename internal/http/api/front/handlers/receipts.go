package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

// ReceiptHandler manages per-conversation read receipts.
type ReceiptHandler struct {
	db      *gorm.DB
	checker *authz.Checker
	hub     *realtime.Hub
}

// NewReceiptHandler constructs a ReceiptHandler.
func NewReceiptHandler(db *gorm.DB, checker *authz.Checker, hub *realtime.Hub) *ReceiptHandler {
	return &ReceiptHandler{db: db, checker: checker, hub: hub}
}

// updateReceiptRequest defines the request body for advancing a receipt.
type updateReceiptRequest struct {
	LastReadMessageID uint64 `json:"last_read_message_id"`
}

// Update advances the caller's read marker. Markers only move forward.
func (h *ReceiptHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body updateReceiptRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	if body.LastReadMessageID == 0 {
		apierr.Validation(c, "missing last read message id")
		return
	}
	ctx := c.Request.Context()

	isMember, errMember := h.checker.IsConversationMember(ctx, userID, conversationID)
	if errMember != nil {
		apierr.Infrastructure(c, "membership check failed")
		return
	}
	if !isMember {
		apierr.NotFound(c)
		return
	}

	var message models.Message
	if errFind := h.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", body.LastReadMessageID, conversationID).
		Take(&message).Error; errFind != nil {
		apierr.Validation(c, "unknown message")
		return
	}

	now := time.Now().UTC()
	receipt := models.ReadReceipt{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: body.LastReadMessageID,
		ReadAt:            now,
	}
	errUpsert := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_read_message_id": body.LastReadMessageID,
			"read_at":              now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("read_receipts.last_read_message_id < ?", body.LastReadMessageID),
		}},
	}).Create(&receipt).Error
	if errUpsert != nil {
		apierr.Infrastructure(c, "update receipt failed")
		return
	}

	h.hub.Publish(memberIDs(h.db, c, conversationID), realtime.EventReceiptUpdated, gin.H{
		"conversation_id":      conversationID,
		"user_id":              userID,
		"last_read_message_id": body.LastReadMessageID,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// List returns every member's read marker for a conversation.
func (h *ReceiptHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	isMember, errMember := h.checker.IsConversationMember(ctx, userID, conversationID)
	if errMember != nil {
		apierr.Infrastructure(c, "membership check failed")
		return
	}
	if !isMember {
		apierr.NotFound(c)
		return
	}

	var rows []models.ReadReceipt
	if errFind := h.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list receipts failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"user_id":              row.UserID,
			"last_read_message_id": row.LastReadMessageID,
			"read_at":              row.ReadAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"receipts": out})
}
