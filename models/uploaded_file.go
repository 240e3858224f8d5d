package models

import "time"

// UploadedFile tracks a stored cover image. ExpireAt stays nil while a post references the file;
// once set, the cleanup job removes the file and the row after that instant.
type UploadedFile struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	OwnerID   uint       `gorm:"not null;index" json:"owner_id"`
	FilePath  string     `gorm:"size:1024;not null" json:"-"`
	URL       string     `gorm:"size:512;not null;index" json:"url"`
	ExpireAt  *time.Time `gorm:"index" json:"expire_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
