package db

import (
	"fmt"
	"log"

	"card-arena/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgres opens a gorm connection and migrates the engine's tables.
func NewPostgres(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.AutoMigrate(
		&models.Player{},
		&models.Card{},
		&models.CollectionEntry{},
		&models.LoadoutSlot{},
		&models.Match{},
		&models.Round{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Postgres schema migrated")
	return gdb, nil
}
