package models

import "time"

// Friendship statuses.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipDeclined = "declined"
	FriendshipBlocked  = "blocked"
)

// Friendship represents a directed friend relationship between two users.
// The row is created by the requester; status transitions are driven by the addressee.
type Friendship struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequesterID uint64 `gorm:"not null;index;uniqueIndex:idx_friendships_pair"` // User who sent the request.
	AddresseeID uint64 `gorm:"not null;index;uniqueIndex:idx_friendships_pair"` // User who received the request.

	Status string `gorm:"type:text;not null;default:pending"` // pending, accepted, declined or blocked.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
