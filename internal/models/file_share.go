package models

import "time"

// FileShare grants one user read access to one file.
type FileShare struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FileID    uint64 `gorm:"not null;index;uniqueIndex:idx_file_shares_grant"` // Shared file ID.
	GranteeID uint64 `gorm:"not null;index;uniqueIndex:idx_file_shares_grant"` // User granted access.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
