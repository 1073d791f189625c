package models

import "time"

// File visibility levels.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
	VisibilityShared  = "shared"
	VisibilityFriends = "friends"
)

// File represents uploaded file metadata. The bytes live in the object store
// under ObjectKey; this row only carries ownership and visibility.
type File struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // Owning user ID.
	Owner   *User  `gorm:"foreignKey:OwnerID"`

	Name      string `gorm:"type:text;not null"`            // Display file name.
	ObjectKey string `gorm:"type:text;not null;uniqueIndex"` // Opaque object store key.
	Size      int64  `gorm:"not null"`                      // Declared size in bytes.
	MimeType  string `gorm:"type:text;not null"`            // Declared content type.

	Visibility string `gorm:"type:text;not null;default:private;index"` // private, public, shared or friends.
	Uploaded   bool   `gorm:"not null;default:false"`                   // Whether the bytes have arrived.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
