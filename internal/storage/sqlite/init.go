package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY,
	download_id TEXT NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	title TEXT,
	downloaded_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'available',
	instance_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_instance_status ON downloads (instance_id, status);`

// InitDB opens the SQLite database at path and creates the downloads table if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
