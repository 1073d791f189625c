package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
)

const maxKeyMaterialBytes = 8 * 1024

// KeyHandler serves client key material. The server stores public keys and
// wrapped conversation keys as opaque strings and never inspects them.
type KeyHandler struct {
	db      *gorm.DB
	checker *authz.Checker
}

// NewKeyHandler constructs a KeyHandler.
func NewKeyHandler(db *gorm.DB, checker *authz.Checker) *KeyHandler {
	return &KeyHandler{db: db, checker: checker}
}

// setPublicKeyRequest defines the request body for publishing a public key.
type setPublicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// SetPublicKey stores the caller's public key.
func (h *KeyHandler) SetPublicKey(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body setPublicKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	key := strings.TrimSpace(body.PublicKey)
	if key == "" || len(key) > maxKeyMaterialBytes {
		apierr.Validation(c, "invalid public key")
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("public_key", key)
	if res.Error != nil {
		apierr.Infrastructure(c, "store public key failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetPublicKey returns another user's public key.
func (h *KeyHandler) GetPublicKey(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, targetID).Error; errFind != nil {
		apierr.NotFound(c)
		return
	}
	if user.PublicKey == "" {
		apierr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "public_key": user.PublicKey})
}

// setWrappedKeyRequest defines the request body for storing a wrapped
// conversation key for one member.
type setWrappedKeyRequest struct {
	UserID     uint64 `json:"user_id"`
	WrappedKey string `json:"wrapped_key"`
}

// SetWrappedKey stores a conversation key wrapped for a member. Any member
// can wrap keys for other members.
func (h *KeyHandler) SetWrappedKey(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body setWrappedKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	wrapped := strings.TrimSpace(body.WrappedKey)
	if body.UserID == 0 || wrapped == "" || len(wrapped) > maxKeyMaterialBytes {
		apierr.Validation(c, "invalid wrapped key")
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

	res := h.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, body.UserID).
		Update("wrapped_key", wrapped)
	if res.Error != nil {
		apierr.Infrastructure(c, "store wrapped key failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.Validation(c, "not a member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetWrappedKey returns the caller's own wrapped key for a conversation.
func (h *KeyHandler) GetWrappedKey(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var member models.ConversationMember
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Take(&member).Error; errFind != nil {
		apierr.NotFound(c)
		return
	}
	if member.WrappedKey == "" {
		apierr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "wrapped_key": member.WrappedKey})
}
