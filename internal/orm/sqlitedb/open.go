// Package sqlitedb opens SQLite databases through either supported driver:
// mattn/go-sqlite3 ("sqlite3", cgo) or modernc.org/sqlite ("sqlite", pure Go).
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// Memory is the path of a private in-memory database
const Memory = ":memory:"

var journalModes = map[string]bool{
	"DELETE": true, "TRUNCATE": true, "PERSIST": true,
	"MEMORY": true, "WAL": true, "OFF": true,
}

// Options configures Open
type Options struct {
	Driver      string // DriverCGO when empty
	Path        string
	JournalMode string // left as SQLite's default when empty
	ForeignKeys bool
	BusyTimeout int // milliseconds
}

// ValidateDriver reports an unknown driver name
func ValidateDriver(driver string) error {
	switch driver {
	case "", DriverCGO, DriverPureGo:
		return nil
	}
	return fmt.Errorf("unknown sqlite driver %q (want %s or %s)", driver, DriverCGO, DriverPureGo)
}

// ValidateJournalMode reports a journal mode SQLite does not know
func ValidateJournalMode(mode string) error {
	if mode == "" || journalModes[strings.ToUpper(mode)] {
		return nil
	}
	return fmt.Errorf("unknown journal mode %q", mode)
}

// IsMemory reports whether path names an in-memory database
func IsMemory(path string) bool {
	return path == Memory || strings.HasPrefix(path, "file::memory:")
}

// Open opens the database and applies the connection pragmas. An in-memory
// database lives as long as its connection, so its pool is held to one.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	if err := ValidateDriver(opts.Driver); err != nil {
		return nil, err
	}
	if err := ValidateJournalMode(opts.JournalMode); err != nil {
		return nil, err
	}
	driver := opts.Driver
	if driver == "" {
		driver = DriverCGO
	}
	path := opts.Path
	if path == "" {
		path = Memory
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if IsMemory(path) {
		db.SetMaxOpenConns(1)
	}

	var pragmas []string
	if opts.JournalMode != "" && !IsMemory(path) {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+strings.ToUpper(opts.JournalMode))
	}
	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout))
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
