package codegen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// DB is the subset of *sql.DB and *sql.Tx used to create tables
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableSchemaMismatchError is returned when a table exists with DDL other
// than the model generates
type TableSchemaMismatchError struct {
	Table    string
	Existing string
	Expected string
}

func (e *TableSchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s exists with a different schema:\n  existing: %s\n  expected: %s", e.Table, e.Existing, e.Expected)
}

// TableSQL returns the stored CREATE TABLE statement of table, or "" when
// the table does not exist
func TableSQL(ctx context.Context, db DB, table string) (string, error) {
	var ddl string
	err := db.QueryRowContext(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema of %s: %w", table, err)
	}
	return ddl, nil
}

// EnsureTable creates the table of meta, or checks that the existing table
// was created from the same DDL. It reports whether the table was created.
func (g *DDLGenerator) EnsureTable(ctx context.Context, db DB, meta *schema.ModelMeta) (bool, error) {
	ddl, err := g.GenerateCreateTable(meta)
	if err != nil {
		return false, err
	}

	existing, err := TableSQL(ctx, db, meta.TableName)
	if err != nil {
		return false, err
	}
	if existing != "" {
		if NormalizeDDL(existing) != NormalizeDDL(ddl) {
			return false, &TableSchemaMismatchError{
				Table:    meta.TableName,
				Existing: NormalizeDDL(existing),
				Expected: NormalizeDDL(ddl),
			}
		}
		return false, nil
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return false, fmt.Errorf("create table %s: %w", meta.TableName, err)
	}
	return true, nil
}
