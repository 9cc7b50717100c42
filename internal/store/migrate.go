package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/verdia/trellis/internal/models"
)

// AllModels returns every GORM model Trellis migrates.
func AllModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.Message{},
		&models.DiagnosisReport{},
	}
}

// AutoMigrate creates or updates all Trellis tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("store: auto-migrate: %w", err)
	}
	return nil
}
