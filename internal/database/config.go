package database

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseType selects the backing relational store.
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeMariaDB    DatabaseType = "mariadb"
)

// DatabaseConfig describes how to connect to the persistent store. SQLite is
// the default single-writer embedded store; Postgres/MySQL are available for
// anyone who wants to point the daemon at a shared server instead.
type DatabaseConfig struct {
	Type DatabaseType

	// Path is the SQLite database file.
	Path string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
}

// DefaultDatabaseConfig returns an embedded SQLite configuration with
// write-ahead journaling and a 30s busy-timeout, as required by the store's
// single-writer contract.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:            DatabaseTypeSQLite,
		Path:            GetDefaultDatabasePath(),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 60,
	}
}

// Validate checks that required fields are present for the configured type.
func (c *DatabaseConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("database config is nil")
	}
	switch c.Type {
	case DatabaseTypeSQLite, "":
		if c.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeMariaDB:
		if c.Host == "" || c.Name == "" {
			return fmt.Errorf("host and database name are required for %s", c.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// GetDSN builds the connection string for server-backed dialects. SQLite
// connects via its file path directly and does not use this.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case DatabaseTypePostgreSQL:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return ""
	}
}

// SQLitePath builds a gorm-ready DSN with WAL journaling and a 30s
// busy-timeout, as mandated for the embedded store.
func (c *DatabaseConfig) SQLitePath() string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=30000", c.Path)
}

// GetDefaultDatabasePath returns the default path for the database file.
func GetDefaultDatabasePath() string {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	return filepath.Join(dataDir, "library.db")
}
