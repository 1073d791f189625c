package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
)

// ConversationHandler manages conversations and memberships.
type ConversationHandler struct {
	db      *gorm.DB
	checker *authz.Checker
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(db *gorm.DB, checker *authz.Checker) *ConversationHandler {
	return &ConversationHandler{db: db, checker: checker}
}

// directKey builds the unique pair key for a direct conversation.
func directKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// createConversationRequest defines the request body for conversation creation.
type createConversationRequest struct {
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	MemberIDs []uint64 `json:"member_ids"`
}

// Create starts a direct or group conversation. Direct conversations are
// idempotent per user pair: creating an existing one returns it.
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body createConversationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	convType := strings.TrimSpace(body.Type)
	if convType == "" {
		convType = models.ConversationDirect
	}
	ctx := c.Request.Context()

	switch convType {
	case models.ConversationDirect:
		if len(body.MemberIDs) != 1 || body.MemberIDs[0] == 0 || body.MemberIDs[0] == userID {
			apierr.Validation(c, "direct conversation needs exactly one other member")
			return
		}
		peerID := body.MemberIDs[0]
		var peer models.User
		if errFind := h.db.WithContext(ctx).First(&peer, peerID).Error; errFind != nil {
			apierr.Validation(c, "unknown member")
			return
		}

		key := directKey(userID, peerID)
		var existing models.Conversation
		if errFind := h.db.WithContext(ctx).Where("direct_key = ?", key).Take(&existing).Error; errFind == nil {
			c.JSON(http.StatusOK, gin.H{"id": existing.ID, "type": existing.Type, "existing": true})
			return
		}

		conversation := models.Conversation{Type: models.ConversationDirect, DirectKey: key, CreatedBy: userID}
		errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errCreate := tx.Create(&conversation).Error; errCreate != nil {
				return errCreate
			}
			members := []models.ConversationMember{
				{ConversationID: conversation.ID, UserID: userID, Role: models.MemberRoleOwner},
				{ConversationID: conversation.ID, UserID: peerID, Role: models.MemberRoleMember},
			}
			return tx.Create(&members).Error
		})
		if errTx != nil {
			apierr.Infrastructure(c, "create conversation failed")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": conversation.ID, "type": conversation.Type})

	case models.ConversationGroup:
		name := strings.TrimSpace(body.Name)
		if name == "" {
			apierr.Validation(c, "missing group name")
			return
		}
		conversation := models.Conversation{Type: models.ConversationGroup, Name: name, CreatedBy: userID}
		errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if errCreate := tx.Create(&conversation).Error; errCreate != nil {
				return errCreate
			}
			members := []models.ConversationMember{{ConversationID: conversation.ID, UserID: userID, Role: models.MemberRoleOwner}}
			for _, memberID := range body.MemberIDs {
				if memberID == 0 || memberID == userID {
					continue
				}
				members = append(members, models.ConversationMember{ConversationID: conversation.ID, UserID: memberID, Role: models.MemberRoleMember})
			}
			return tx.Create(&members).Error
		})
		if errTx != nil {
			apierr.Infrastructure(c, "create conversation failed")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": conversation.ID, "type": conversation.Type, "name": conversation.Name})

	default:
		apierr.Validation(c, "invalid conversation type")
	}
}

// List returns the caller's conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var rows []models.Conversation
	if errFind := h.db.WithContext(ctx).
		Where("id IN (?)", h.db.Model(&models.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list conversations failed")
		return
	}
	lastByConversation := h.lastMessages(c, rows)
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		entry := gin.H{
			"id":         row.ID,
			"type":       row.Type,
			"name":       row.Name,
			"created_by": row.CreatedBy,
			"updated_at": row.UpdatedAt,
		}
		if last, ok := lastByConversation[row.ID]; ok {
			entry["last_message"] = messageJSON(&last)
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// lastMessages loads the newest message per conversation for list previews.
func (h *ConversationHandler) lastMessages(c *gin.Context, rows []models.Conversation) map[uint64]models.Message {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var messages []models.Message
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id IN (?)", h.db.Model(&models.Message{}).
			Select("MAX(id)").
			Where("conversation_id IN ?", ids).
			Group("conversation_id")).
		Find(&messages).Error; errFind != nil {
		return nil
	}
	out := make(map[uint64]models.Message, len(messages))
	for _, message := range messages {
		out[message.ConversationID] = message
	}
	return out
}

// Get returns one conversation with its members, member-only.
func (h *ConversationHandler) Get(c *gin.Context) {
	conversation, _, ok := h.loadMemberConversation(c)
	if !ok {
		return
	}
	var members []models.ConversationMember
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("conversation_id = ?", conversation.ID).
		Order("joined_at ASC").
		Find(&members).Error; errFind != nil {
		apierr.Infrastructure(c, "load members failed")
		return
	}
	outMembers := make([]gin.H, 0, len(members))
	for _, member := range members {
		outMembers = append(outMembers, gin.H{
			"user_id":   member.UserID,
			"role":      member.Role,
			"joined_at": member.JoinedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         conversation.ID,
		"type":       conversation.Type,
		"name":       conversation.Name,
		"created_by": conversation.CreatedBy,
		"members":    outMembers,
	})
}

// addMemberRequest defines the request body for adding a group member.
type addMemberRequest struct {
	UserID uint64 `json:"user_id"`
}

// AddMember adds a user to a group conversation. Group owner only.
func (h *ConversationHandler) AddMember(c *gin.Context) {
	conversation, userID, ok := h.loadMemberConversation(c)
	if !ok {
		return
	}
	if conversation.Type != models.ConversationGroup {
		apierr.Validation(c, "not a group conversation")
		return
	}
	ctx := c.Request.Context()
	if !h.isConversationOwner(c, conversation.ID, userID) {
		return
	}

	var body addMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	if body.UserID == 0 {
		apierr.Validation(c, "missing user id")
		return
	}
	member := models.ConversationMember{
		ConversationID: conversation.ID,
		UserID:         body.UserID,
		Role:           models.MemberRoleMember,
	}
	if errCreate := h.db.WithContext(ctx).Create(&member).Error; errCreate != nil {
		apierr.Validation(c, "already a member")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// RemoveMember removes a user from a group conversation. The owner can remove
// anyone; members can remove themselves.
func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	conversation, userID, ok := h.loadMemberConversation(c)
	if !ok {
		return
	}
	if conversation.Type != models.ConversationGroup {
		apierr.Validation(c, "not a group conversation")
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if targetID != userID && !h.isConversationOwner(c, conversation.ID, userID) {
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("conversation_id = ? AND user_id = ?", conversation.ID, targetID).
		Delete(&models.ConversationMember{})
	if res.Error != nil {
		apierr.Infrastructure(c, "remove member failed")
		return
	}
	if res.RowsAffected == 0 {
		apierr.NotFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// isConversationOwner checks the owner role, aborting on failure.
func (h *ConversationHandler) isConversationOwner(c *gin.Context, conversationID, userID uint64) bool {
	var member models.ConversationMember
	errFind := h.db.WithContext(c.Request.Context()).
		Where("conversation_id = ? AND user_id = ? AND role = ?", conversationID, userID, models.MemberRoleOwner).
		Take(&member).Error
	if errFind != nil {
		apierr.NotFound(c)
		return false
	}
	return true
}

// loadMemberConversation loads the :id conversation and requires membership.
// Non-members get not-found.
func (h *ConversationHandler) loadMemberConversation(c *gin.Context) (*models.Conversation, uint64, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, 0, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil, 0, false
	}
	ctx := c.Request.Context()

	isMember, errMember := h.checker.IsConversationMember(ctx, userID, id)
	if errMember != nil {
		apierr.Infrastructure(c, "membership check failed")
		return nil, 0, false
	}
	if !isMember {
		apierr.NotFound(c)
		return nil, 0, false
	}

	var conversation models.Conversation
	if errFind := h.db.WithContext(ctx).First(&conversation, id).Error; errFind != nil {
		apierr.NotFound(c)
		return nil, 0, false
	}
	return &conversation, userID, true
}

// memberIDs returns every member's user ID for event fan-out.
func memberIDs(db *gorm.DB, c *gin.Context, conversationID uint64) []uint64 {
	var ids []uint64
	_ = db.WithContext(c.Request.Context()).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids
}
