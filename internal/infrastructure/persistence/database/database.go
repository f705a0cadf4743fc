// Package database provides the core functionality for creating and managing
// database connections and the attribution schema.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Driver names registered by the imported drivers.
const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver             string
	SlowQueryThreshold time.Duration
	logger             *logging.ChanneledLogger
}

// Config describes how to reach the database.
type Config struct {
	Driver             string
	DataSourceName     string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	SlowQueryThreshold time.Duration
}

// SQLiteConfig returns a Config for a local SQLite file, creating its
// directory if needed.
func SQLiteConfig(path string) (Config, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Config{}, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	return Config{Driver: DriverSQLite, DataSourceName: dsn}, nil
}

// TursoConfig returns a Config for a Turso database.
func TursoConfig(databaseURL, authToken string) Config {
	return Config{
		Driver:         DriverLibSQL,
		DataSourceName: fmt.Sprintf("%s?authToken=%s", databaseURL, authToken),
	}
}

// NewConnectionWithLogger establishes a new database connection for the
// configured driver with logging.
func NewConnectionWithLogger(cfg Config, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", cfg.Driver)

	db, err := sql.Open(cfg.Driver, cfg.DataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", cfg.Driver)
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", cfg.Driver)
		return nil, fmt.Errorf("%s ping failed: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	threshold := cfg.SlowQueryThreshold
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}

	logger.Database().Info("Database connection established", "driverName", cfg.Driver, "duration", time.Since(start))
	return &DB{DB: db, Driver: cfg.Driver, SlowQueryThreshold: threshold, logger: logger}, nil
}

// ObserveQuery reports a query as slow when it exceeded the threshold.
func (db *DB) ObserveQuery(query string, start time.Time) {
	if duration := time.Since(start); duration > db.SlowQueryThreshold {
		db.logger.LogSlowQuery(query, duration)
	}
}
