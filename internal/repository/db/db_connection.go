package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// InMemoryDSN keeps the message log in a shared in-memory database. The
// simulator has no persistence requirement; a restart starts clean.
const InMemoryDSN = "file:simulator?mode=memory&cache=shared"

const schemaMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TIMESTAMP NOT NULL,
    direction TEXT NOT NULL,
    raw TEXT NOT NULL,
    command TEXT,
    request_id TEXT
);
`

// InitDB opens the SQLite database at dsn (a file path or InMemoryDSN) and
// ensures the schema exists.
func InitDB(dsn string) (*sql.DB, error) {
	database, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", dsn, err)
	}

	// Single connection: SQLite handles one writer, and with an in-memory
	// DSN every connection must share the same cache anyway.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if _, err := database.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if _, err := database.Exec(schemaMessages); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("apply messages schema: %w", err)
	}

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return database, nil
}
