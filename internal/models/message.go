package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message content types.
const (
	MessageText      = "text"
	MessageFile      = "file"
	MessageEncrypted = "encrypted"
)

// Message represents a chat message. Body is opaque: clients may store
// ciphertext, and the server never inspects it.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID uint64 `gorm:"not null;index:idx_messages_conversation_id_id"` // Parent conversation ID.
	SenderID       uint64 `gorm:"not null;index"`                                 // Sending user ID.

	ContentType string         `gorm:"type:text;not null;default:text"` // text, file or encrypted.
	Body        string         `gorm:"type:text"`                       // Message body or ciphertext.
	Metadata    datatypes.JSON `gorm:"type:jsonb"`                      // Client metadata (attachments, nonce, key version).

	Edited  bool `gorm:"not null;default:false"` // Whether the body was edited.
	Deleted bool `gorm:"not null;default:false"` // Soft-delete flag; body is blanked on delete.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// Reaction represents an emoji reaction on a message.
type Reaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MessageID uint64 `gorm:"not null;index;uniqueIndex:idx_reactions_unique"` // Target message ID.
	UserID    uint64 `gorm:"not null;uniqueIndex:idx_reactions_unique"`       // Reacting user ID.
	Emoji     string `gorm:"type:text;not null;uniqueIndex:idx_reactions_unique"` // Emoji literal.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
