package models

import "time"

// PlaybackActivity is one append-only playback fact, written by the inbound
// webhook and never updated afterwards.
type PlaybackActivity struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Date       time.Time `gorm:"index"`
	UserID     string    `gorm:"size:64;index"`
	UserName   string    `gorm:"size:128"`
	ItemID     string    `gorm:"size:64;index"`
	ItemName   string    `gorm:"size:255"`
	ItemType   string    `gorm:"size:32"`
	Duration   int       // seconds
	Client     string    `gorm:"size:128"`
	DeviceName string    `gorm:"size:128"`
}
