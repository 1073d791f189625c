package models

import "time"

// Presence statuses.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// Presence tracks a user's last reported availability.
type Presence struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // User ID, one row per user.

	Status     string    `gorm:"type:text;not null;default:offline"` // online, away or offline.
	LastSeenAt time.Time `gorm:"not null"`                           // Last heartbeat timestamp.
}
