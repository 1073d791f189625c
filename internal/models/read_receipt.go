package models

import "time"

// ReadReceipt records the newest message a user has read in a conversation.
type ReadReceipt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID uint64 `gorm:"not null;index;uniqueIndex:idx_read_receipts_pair"` // Conversation ID.
	UserID         uint64 `gorm:"not null;uniqueIndex:idx_read_receipts_pair"`       // Reading user ID.

	LastReadMessageID uint64    `gorm:"not null"` // Highest message ID the user has read.
	ReadAt            time.Time `gorm:"not null"` // When the receipt was last advanced.
}
