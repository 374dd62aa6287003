package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/tuplesaver/tuplesaver/internal/orm/codegen"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// ChangeType represents the kind of change a table needs
type ChangeType int

const (
	ChangeCreateTable ChangeType = iota
	ChangeRebuildTable
	ChangeDropTable
)

// String returns the string representation of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeCreateTable:
		return "create"
	case ChangeRebuildTable:
		return "rebuild"
	case ChangeDropTable:
		return "drop"
	default:
		return "unknown"
	}
}

// ModelDiff lists the tables whose stored schema differs from the models
type ModelDiff struct {
	ToCreate  []string
	ToRebuild []string // stored DDL differs from the model's
	ToDrop    []string // tables no model maps to
}

// IsEmpty reports whether the database matches the models
func (d ModelDiff) IsEmpty() bool {
	return len(d.ToCreate) == 0 && len(d.ToRebuild) == 0 && len(d.ToDrop) == 0
}

// Changes returns each table with the change it needs
func (d ModelDiff) Changes() map[string]ChangeType {
	out := make(map[string]ChangeType)
	for _, t := range d.ToCreate {
		out[t] = ChangeCreateTable
	}
	for _, t := range d.ToRebuild {
		out[t] = ChangeRebuildTable
	}
	for _, t := range d.ToDrop {
		out[t] = ChangeDropTable
	}
	return out
}

// Differ compares table models with the tables of a database
type Differ struct {
	ddl    *codegen.DDLGenerator
	models []*schema.ModelMeta
}

// NewDiffer creates a differ for the given table models
func NewDiffer(ddl *codegen.DDLGenerator, models []*schema.ModelMeta) *Differ {
	return &Differ{ddl: ddl, models: models}
}

// Diff compares the models with the tables stored in db
func (d *Differ) Diff(ctx context.Context, db DB) (ModelDiff, error) {
	var diff ModelDiff

	existing, err := ExistingTables(ctx, db)
	if err != nil {
		return diff, err
	}

	modelled := make(map[string]bool, len(d.models))
	for _, m := range d.models {
		modelled[m.TableName] = true
		expected, err := d.ddl.GenerateCreateTable(m)
		if err != nil {
			return diff, err
		}
		stored, ok := existing[m.TableName]
		switch {
		case !ok:
			diff.ToCreate = append(diff.ToCreate, m.TableName)
		case codegen.NormalizeDDL(stored) != codegen.NormalizeDDL(expected):
			diff.ToRebuild = append(diff.ToRebuild, m.TableName)
		}
	}
	for name := range existing {
		if !modelled[name] {
			diff.ToDrop = append(diff.ToDrop, name)
		}
	}

	sort.Strings(diff.ToCreate)
	sort.Strings(diff.ToRebuild)
	sort.Strings(diff.ToDrop)
	return diff, nil
}

// ExistingTables returns the stored CREATE TABLE statement of every user
// table, keyed by table name. SQLite's own tables and the tracking table
// are left out.
func ExistingTables(ctx context.Context, db DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> ? ORDER BY name",
		TrackingTable)
	if err != nil {
		return nil, fmt.Errorf("read sqlite_master: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("read sqlite_master: %w", err)
		}
		out[name] = ddl
	}
	return out, rows.Err()
}

// tableColumns returns the column names of a stored table in order
func tableColumns(ctx context.Context, db DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, ctype      string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
