package models

import "time"

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string  `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Name     string  `gorm:"type:text"`                      // Display name.
	Email    *string `gorm:"type:text;uniqueIndex"`          // Optional email address, NULL when unset.
	Password string  `gorm:"type:text;not null"`             // Hashed password.

	PublicKey string `gorm:"type:text"` // Client-published encryption public key, opaque to the server.

	StorageUsed  int64 `gorm:"not null;default:0"`          // Bytes currently attributed to uploaded files.
	StorageQuota int64 `gorm:"not null;default:1073741824"` // Storage cap in bytes.

	Active   bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// EmailAddress returns the email or "" when none is set.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
