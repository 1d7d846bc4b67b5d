package shared

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewDatabase opens a connection to a SQLite database at the specified path.
//
// The path can be ":memory:" for an in-memory database. File databases use WAL journaling and a busy timeout.
// The pool is capped at a single connection because SQLite allows one writer and
// every in-memory connection would otherwise be a separate database.
func NewDatabase(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_journal=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}

// LimitDatabaseSize caps the database file at roughly maxBytes via PRAGMA max_page_count.
//
// Writes beyond the cap fail with SQLITE_FULL. SQLite never shrinks the cap below the current size.
// A non-positive maxBytes leaves the database unbounded.
func LimitDatabaseSize(db *sql.DB, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}

	var pageSize int64
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return fmt.Errorf("failed to read page size: %w", err)
	}

	pages := maxBytes / pageSize
	if pages < 1 {
		pages = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA max_page_count = %d", pages)); err != nil {
		return fmt.Errorf("failed to set max page count: %w", err)
	}
	return nil
}
