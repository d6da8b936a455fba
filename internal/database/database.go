package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	logger *zap.Logger
}

func New(storagePath string, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", storagePath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{
		DB:     db,
		logger: logger,
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database connection established", zap.String("path", storagePath))
	return database, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		// Movement log, append-only; uploaded flag flipped after confirmed upload
		`CREATE TABLE IF NOT EXISTS move_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			accuracy REAL NOT NULL DEFAULT 0,
			activity_status TEXT NOT NULL,
			uploaded INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_move_log_recorded ON move_log(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_move_log_uploaded ON move_log(uploaded, recorded_at)`,
		// Single-row auth session status
		`CREATE TABLE IF NOT EXISTS session_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_session_managed INTEGER NOT NULL DEFAULT 0,
			reauth_required INTEGER NOT NULL DEFAULT 0,
			reauth_reason TEXT,
			reauth_detected_at INTEGER,
			last_reauth_notified_at INTEGER
		)`,
		// Key-value settings (connection settings, frequencies, send status)
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		// Persisted session cookies for the BFF
		`CREATE TABLE IF NOT EXISTS auth_cookies (
			key TEXT PRIMARY KEY,
			cookie_json TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}

func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.logger.Info("Database connection closed")
	return nil
}
