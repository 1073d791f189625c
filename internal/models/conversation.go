package models

import "time"

// Conversation types.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation member roles.
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// Conversation represents a direct or group chat.
type Conversation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Type string `gorm:"type:text;not null;default:direct"` // direct or group.
	Name string `gorm:"type:text"`                         // Group display name, empty for direct chats.

	// DirectKey is "min:max" of the two member IDs for direct conversations,
	// enforcing one conversation per pair. Empty for groups.
	DirectKey string `gorm:"type:text;uniqueIndex:idx_conversations_direct_key,where:direct_key <> ''"`

	CreatedBy uint64 `gorm:"not null;index"` // Creating user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ConversationMember links a user to a conversation.
type ConversationMember struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID uint64 `gorm:"not null;index;uniqueIndex:idx_conversation_members_pair"` // Conversation ID.
	UserID         uint64 `gorm:"not null;index;uniqueIndex:idx_conversation_members_pair"` // Member user ID.

	Role string `gorm:"type:text;not null;default:member"` // owner or member.

	// WrappedKey holds the conversation key encrypted to this member's public
	// key by a client. The server never decrypts it.
	WrappedKey string `gorm:"type:text"`

	JoinedAt time.Time `gorm:"not null;autoCreateTime"` // Join timestamp.
}
