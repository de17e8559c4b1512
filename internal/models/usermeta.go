package models

import "time"

// UserMetadata carries the companion-side state for one Emby user. The
// unique index keeps the at-most-one-row-per-user invariant.
type UserMetadata struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	UserID     string `gorm:"size:64;uniqueIndex"`
	ExpireDate string `gorm:"size:10"` // YYYY-MM-DD, empty means never
	Note       string `gorm:"type:text"`
	CreatedAt  time.Time
}
