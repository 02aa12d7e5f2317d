package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "SQLite",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		co2 TEXT NOT NULL,
		humidity TEXT NOT NULL,
		temperature TEXT NOT NULL,
		recorded_at TEXT,
		fields TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	insertSQL: `INSERT INTO measurements (co2, humidity, temperature, recorded_at, fields) VALUES (?, ?, ?, ?, ?)`,
}

// NewSQLiteStorage opens (or creates) a SQLite database file
func NewSQLiteStorage(path string) (DatabaseStorage, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s failed: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open SQLite %s failed: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	storage := newSQLStorage(db, sqliteDialect)
	if err := storage.InitDatabase(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}
