package db

import (
	"fmt"

	"github.com/keyforge-io/keyforge/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.Seller{},
		&models.Application{},
		&models.EndUser{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
