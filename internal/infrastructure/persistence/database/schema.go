package database

import (
	"fmt"
	"time"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS touchpoints (
		sequence_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_touchpoints_user_time ON touchpoints (user_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS conversions (
		conversion_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		conversion_type TEXT NOT NULL,
		revenue REAL NOT NULL,
		occurred_at TEXT NOT NULL,
		touchpoint_count INTEGER NOT NULL,
		attribution TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_time ON conversions (occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_user ON conversions (user_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS content_revenue (
		content_id TEXT PRIMARY KEY,
		total_revenue REAL NOT NULL DEFAULT 0,
		conversions REAL NOT NULL DEFAULT 0,
		first_touch_conversions INTEGER NOT NULL DEFAULT 0,
		last_touch_conversions INTEGER NOT NULL DEFAULT 0,
		assisted_conversions INTEGER NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the attribution tables and indexes if they are missing.
func (db *DB) EnsureSchema() error {
	start := time.Now()
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.logger.Database().Error("Schema statement failed", "error", err.Error(), "statement", stmt)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	db.logger.Database().Info("Schema ensured", "statements", len(schemaStatements), "duration", time.Since(start))
	return nil
}
