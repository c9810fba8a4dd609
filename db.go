package main

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports one writer at a time. Keeping a single shared connection
	// avoids intra-process write contention that can surface as SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := execStatements(db,
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=15000;`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite pragmas: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func applyMigrations(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS queue_items (
			item_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('page', 'selection', 'file', 'youtube', 'note')),
			title TEXT NOT NULL,
			payload TEXT,
			url TEXT,
			mime TEXT,
			notebook_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'done', 'error')),
			message TEXT,
			progress INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notebooks_latest (
			notebook_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS exports_history (
			row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			notebook_id TEXT NOT NULL,
			category TEXT NOT NULL,
			format TEXT NOT NULL,
			filename TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_created_at ON queue_items(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_exports_history_created_at ON exports_history(created_at);`,
	}

	if err := execStatements(db, statements...); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return nil
}

func execStatements(db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
