package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appLogger "github.com/drallgood/libraryd/internal/logger"
)

// DatabaseDriver interface defines the contract for database drivers
type DatabaseDriver interface {
	Connect(config *DatabaseConfig, log *appLogger.Logger) (*gorm.DB, error)
	GetDialector(config *DatabaseConfig) gorm.Dialector
	PrepareDatabase(config *DatabaseConfig) error
	GetMigrationOptions() *gorm.Config
}

func silentGorm() logger.Interface {
	return logger.Default.LogMode(logger.Silent)
}

// SQLiteDriver implements DatabaseDriver for SQLite
type SQLiteDriver struct{}

func (d *SQLiteDriver) Connect(config *DatabaseConfig, log *appLogger.Logger) (*gorm.DB, error) {
	if err := d.PrepareDatabase(config); err != nil {
		return nil, err
	}

	db, err := gorm.Open(d.GetDialector(config), &gorm.Config{Logger: silentGorm()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // sqlite doesn't support concurrent writers
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func (d *SQLiteDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return sqlite.Open(config.SQLitePath())
}

func (d *SQLiteDriver) PrepareDatabase(config *DatabaseConfig) error {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func (d *SQLiteDriver) GetMigrationOptions() *gorm.Config {
	return &gorm.Config{}
}

// PostgreSQLDriver implements DatabaseDriver for PostgreSQL
type PostgreSQLDriver struct{}

func (d *PostgreSQLDriver) Connect(config *DatabaseConfig, log *appLogger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(d.GetDialector(config), &gorm.Config{Logger: silentGorm()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	configurePool(sqlDB, config)

	return db, nil
}

func (d *PostgreSQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return postgres.Open(config.GetDSN())
}

func (d *PostgreSQLDriver) PrepareDatabase(config *DatabaseConfig) error {
	return nil
}

func (d *PostgreSQLDriver) GetMigrationOptions() *gorm.Config {
	return &gorm.Config{}
}

// MySQLDriver implements DatabaseDriver for MySQL/MariaDB
type MySQLDriver struct{}

func (d *MySQLDriver) Connect(config *DatabaseConfig, log *appLogger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(d.GetDialector(config), &gorm.Config{Logger: silentGorm()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	configurePool(sqlDB, config)

	return db, nil
}

func (d *MySQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return mysql.Open(config.GetDSN())
}

func (d *MySQLDriver) PrepareDatabase(config *DatabaseConfig) error {
	return nil
}

func (d *MySQLDriver) GetMigrationOptions() *gorm.Config {
	return &gorm.Config{}
}

func configurePool(sqlDB interface {
	SetMaxOpenConns(int)
	SetMaxIdleConns(int)
	SetConnMaxLifetime(time.Duration)
}, config *DatabaseConfig) {
	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 10
	}
	maxIdle := config.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := config.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 60
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Minute)
}

// GetDatabaseDriver returns the appropriate driver for the given database type
func GetDatabaseDriver(dbType DatabaseType) (DatabaseDriver, error) {
	switch dbType {
	case DatabaseTypeSQLite, "":
		return &SQLiteDriver{}, nil
	case DatabaseTypePostgreSQL:
		return &PostgreSQLDriver{}, nil
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return &MySQLDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// ConnectWithFallback attempts to connect to the configured database,
// falling back to SQLite if the connection fails
func ConnectWithFallback(config *DatabaseConfig, log *appLogger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	if err := config.Validate(); err != nil {
		if log != nil {
			log.Warn().Err(err).Str("type", string(config.Type)).Msg("invalid database configuration, falling back to sqlite")
		}
		return connectSQLiteFallback(log)
	}

	driver, err := GetDatabaseDriver(config.Type)
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Str("type", string(config.Type)).Msg("unsupported database type, falling back to sqlite")
		}
		return connectSQLiteFallback(log)
	}

	db, err := driver.Connect(config, log)
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Str("type", string(config.Type)).Str("host", config.Host).Msg("failed to connect to configured database, falling back to sqlite")
		}
		return connectSQLiteFallback(log)
	}

	if log != nil {
		log.Info().Str("type", string(config.Type)).Str("host", config.Host).Msg("connected to database")
	}

	return db, config, nil
}

func connectSQLiteFallback(log *appLogger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	fallbackConfig := &DatabaseConfig{
		Type: DatabaseTypeSQLite,
		Path: GetDefaultDatabasePath(),
	}

	driver := &SQLiteDriver{}
	db, err := driver.Connect(fallbackConfig, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to fallback sqlite database: %w", err)
	}

	if log != nil {
		log.Info().Str("path", fallbackConfig.Path).Msg("connected to fallback sqlite database")
	}

	return db, fallbackConfig, nil
}
