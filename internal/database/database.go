package database

import (
	"fmt"

	"vibefi/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open opens a gorm connection for driver "postgres" or "sqlite"
func Open(driver string, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Connect establishes the shared database connection
func Connect(driver string, dsn string) error {
	db, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = db

	log.Info().Str("driver", driver).Msg("database connection established")
	return nil
}

// Migrate creates or updates the tables of every model
func Migrate(db *gorm.DB) error {
	sessionModels := []interface{}{
		&models.Session{},
		&models.SessionParticipant{},
		&models.SessionVote{},
		&models.SessionTransaction{},
		&models.SessionEvent{},
	}
	for _, model := range sessionModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	for _, model := range []interface{}{&models.User{}, &models.LoginChallenge{}} {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}
	return nil
}

// AutoMigrate runs migrations against the shared connection
func AutoMigrate() error {
	if err := Migrate(DB); err != nil {
		return err
	}
	log.Info().Msg("database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
