// Package migrate keeps a SQLite database in step with the table models.
// Numbered SQL scripts in a directory are applied in order and recorded,
// with a checksum of their text, in the _migrations table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tuplesaver/tuplesaver/internal/orm/codegen"
)

// TrackingTable records applied scripts
const TrackingTable = "_migrations"

// DB is the subset of *sql.DB and *sql.Tx migrations run against
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AppliedMigration is a script recorded as applied
type AppliedMigration struct {
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Tracker manages migration history in the database
type Tracker struct {
	db DB
}

// NewTracker creates a new migration tracker
func NewTracker(db DB) *Tracker {
	return &Tracker{db: db}
}

// Initialize ensures the tracking table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + TrackingTable + ` (
	name TEXT PRIMARY KEY NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// Applied returns the recorded scripts sorted by name. A database that was
// never migrated has none.
func (t *Tracker) Applied(ctx context.Context) ([]AppliedMigration, error) {
	ddl, err := codegen.TableSQL(ctx, t.db, TrackingTable)
	if err != nil {
		return nil, err
	}
	if ddl == "" {
		return nil, nil
	}

	rows, err := t.db.QueryContext(ctx, "SELECT name, checksum, applied_at FROM "+TrackingTable+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			m  AppliedMigration
			at string
		)
		if err := rows.Scan(&m.Name, &m.Checksum, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		if m.AppliedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("migration %s: bad applied_at %q: %w", m.Name, at, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return out, nil
}

// Record marks a script as applied
func (t *Tracker) Record(ctx context.Context, name, checksum string, at time.Time) error {
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO "+TrackingTable+" (name, checksum, applied_at) VALUES (?, ?, ?)",
		name, checksum, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return nil
}
