package models

import "time"

// RateLimitRule configures the request budget for one operation type.
// Reference data: seeded at migration time, updated only through the admin API.
type RateLimitRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OperationType string `gorm:"type:text;not null;uniqueIndex"` // Operation key, e.g. "upload".
	MaxRequests   int    `gorm:"not null"`                       // Allowed requests per window, > 0.
	WindowSeconds int    `gorm:"not null"`                       // Window length in seconds, > 0.
	Description   string `gorm:"type:text"`                      // Human-readable note.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// UsageWindow is one fixed-window counter for a (user, operation) pair.
// Owned exclusively by the rate limiter; rows are pruned by the sweeper once
// the window end is past the retention horizon.
type UsageWindow struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;uniqueIndex:idx_usage_windows_slot"` // Principal ID.
	OperationType string `gorm:"type:text;not null;uniqueIndex:idx_usage_windows_slot"` // Operation key.
	WindowStart   int64  `gorm:"not null;uniqueIndex:idx_usage_windows_slot"` // Window start, unix seconds.
	WindowEnd     int64  `gorm:"not null;index"`                              // Window end, unix seconds.

	RequestCount  int       `gorm:"not null;default:0"` // Requests recorded in this window.
	LastRequestAt time.Time `gorm:"not null"`           // Timestamp of the most recent recorded request.
}
