package database

import (
	"fmt"

	"gorm.io/gorm"

	appLogger "github.com/drallgood/libraryd/internal/logger"
)

// Database wraps the GORM database connection
type Database struct {
	db     *gorm.DB
	logger *appLogger.Logger
}

// NewDatabase opens (and migrates) a database using the given configuration,
// falling back to the embedded SQLite store if the configuration is invalid
// or the connection fails.
func NewDatabase(config *DatabaseConfig, log *appLogger.Logger) (*Database, error) {
	if log == nil {
		log = appLogger.Get()
	}
	if config == nil {
		config = DefaultDatabaseConfig()
	}

	gdb, resolved, err := ConnectWithFallback(config, log)
	if err != nil {
		return nil, err
	}

	database := &Database{db: gdb, logger: log}
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("type", string(resolved.Type)).Msg("database connection established")
	return database, nil
}

// migrate runs database migrations for the book-processing schema.
func (d *Database) migrate() error {
	d.logger.Info().Msg("running database migrations")

	err := d.db.AutoMigrate(
		&Book{},
		&QueueEntry{},
		&HistoryEntry{},
		&DailyStats{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	d.logger.Info().Msg("database migrations completed")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	d.logger.Info().Msg("database connection closed")
	return nil
}

// GetDB returns the underlying GORM database instance
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Health checks the database connection
func (d *Database) Health() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
