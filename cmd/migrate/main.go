package main

import (
	"database/sql"
	"flag"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"vibefi/internal/config"
	"vibefi/internal/database"
	"vibefi/internal/logging"
)

func main() {
	createDB := flag.Bool("create-db", true, "create the postgres database if it does not exist")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Database.Driver == "postgres" && *createDB {
		if err := ensureDatabase(cfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure database")
		}
	}

	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	logger.Info().Str("database", cfg.Database.DBName).Msg("migrations applied")
}

// ensureDatabase connects to the maintenance database and creates the
// configured one when it is missing.
func ensureDatabase(cfg *config.Config) error {
	admin := *cfg
	admin.Database.DBName = "postgres"

	db, err := sql.Open("postgres", admin.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open maintenance connection: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Database.DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up database: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Database.DBName)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	log.Info().Str("database", cfg.Database.DBName).Msg("database created")
	return nil
}
