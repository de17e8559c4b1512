package db

import (
	"fmt"

	"github.com/embywatch/embywatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.PlaybackActivity{},
		&models.UserMetadata{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// UpsertUserMetadata writes the metadata row for a user, updating the
// existing row when one is already present.
func UpsertUserMetadata(db *gorm.DB, meta models.UserMetadata) error {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expire_date", "note"}),
	}).Create(&meta)
	if result.Error != nil {
		return fmt.Errorf("db: upsert metadata for %q: %w", meta.UserID, result.Error)
	}
	return nil
}

// DeleteUserMetadata removes the metadata row for a user. Deleting a user
// without metadata is a no-op.
func DeleteUserMetadata(db *gorm.DB, userID string) error {
	if err := db.Where("user_id = ?", userID).Delete(&models.UserMetadata{}).Error; err != nil {
		return fmt.Errorf("db: delete metadata for %q: %w", userID, err)
	}
	return nil
}
