package store

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS alerts (
		id          TEXT PRIMARY KEY,
		district    TEXT NOT NULL,
		alert_level TEXT NOT NULL CHECK(alert_level IN ('Yellow', 'Orange', 'Red')),
		confidence  REAL NOT NULL,
		latitude    REAL NOT NULL DEFAULT 0,
		longitude   REAL NOT NULL DEFAULT 0,
		as_of_date  TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		notified    INTEGER NOT NULL DEFAULT 0,
		UNIQUE(district, alert_level, as_of_date)
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_district ON alerts(district);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_level ON alerts(alert_level);

	CREATE TABLE IF NOT EXISTS delivery_attempts (
		id           TEXT PRIMARY KEY,
		alert_id     TEXT NOT NULL REFERENCES alerts(id),
		channel      TEXT NOT NULL,
		success      INTEGER NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		attempted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_alert ON delivery_attempts(alert_id);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
