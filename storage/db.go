package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

// Open opens the database in dir and initializes the schema
func Open(dir string) (*DB, error) {
	dbPath := filepath.Join(dir, "piemenu.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode so the dashboard can read while the agent writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activations (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,

		-- What was triggered
		profile TEXT NOT NULL,
		trigger_key TEXT NOT NULL,

		-- What was chosen (empty when nothing was selected)
		item_label TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '',

		-- executed, dismissed, replayed or failed
		outcome TEXT NOT NULL,
		hold_ms INTEGER NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_activations_timestamp ON activations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_activations_profile ON activations(profile);
	CREATE INDEX IF NOT EXISTS idx_activations_outcome ON activations(outcome);
	`

	_, err := db.conn.Exec(schema)
	return err
}
