package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// renderScript writes the SQL that turns the tables of db into the ones
// the models describe. Tables are created or rebuilt with referenced
// tables first; a rebuild copies the columns the old and new layouts share.
func (m *Migrator) renderScript(ctx context.Context, diff ModelDiff) (string, error) {
	changes := diff.Changes()
	byTable := make(map[string]*schema.ModelMeta, len(m.models))
	for _, meta := range m.models {
		byTable[meta.TableName] = meta
	}

	var b strings.Builder
	b.WriteString("-- Generated from models\n")
	for _, table := range schema.NewRelationshipGraph(m.models).TopologicalSort() {
		change, ok := changes[table]
		if !ok || change == ChangeDropTable {
			continue
		}
		meta := byTable[table]
		ddl, err := m.ddl.GenerateCreateTable(meta)
		if err != nil {
			return "", err
		}

		b.WriteString("\n")
		if change == ChangeCreateTable {
			fmt.Fprintf(&b, "%s;\n", ddl)
		} else {
			if err := m.renderRebuild(ctx, &b, meta, ddl); err != nil {
				return "", err
			}
		}
		for _, idx := range m.ddl.GenerateForeignKeyIndexes(meta) {
			fmt.Fprintf(&b, "%s;\n", idx)
		}
	}

	if len(diff.ToDrop) > 0 {
		b.WriteString("\n")
		for _, table := range diff.ToDrop {
			fmt.Fprintf(&b, "%s;\n", m.ddl.GenerateDropTable(table))
		}
	}
	return b.String(), nil
}

// renderRebuild replaces a table through a copy, since SQLite cannot alter
// column definitions in place
func (m *Migrator) renderRebuild(ctx context.Context, b *strings.Builder, meta *schema.ModelMeta, ddl string) error {
	table := meta.TableName
	tmp := table + "__new"

	existing, err := tableColumns(ctx, m.db, table)
	if err != nil {
		return err
	}
	stored := make(map[string]bool, len(existing))
	for _, c := range existing {
		stored[c] = true
	}
	var shared []string
	for _, c := range meta.ColumnNames() {
		if stored[c] {
			shared = append(shared, c)
		}
	}

	fmt.Fprintf(b, "-- rebuild %s\n", table)
	fmt.Fprintf(b, "%s;\n", strings.Replace(ddl, "CREATE TABLE "+table+" (", "CREATE TABLE "+tmp+" (", 1))
	if len(shared) > 0 {
		cols := strings.Join(shared, ", ")
		fmt.Fprintf(b, "INSERT INTO %s (%s) SELECT %s FROM %s;\n", tmp, cols, cols, table)
	}
	fmt.Fprintf(b, "DROP TABLE %s;\n", table)
	fmt.Fprintf(b, "ALTER TABLE %s RENAME TO %s;\n", tmp, table)
	return nil
}

// scriptDescription names a script after what it changes, e.g.
// create_league_team or create_team_rebuild_league
func scriptDescription(diff ModelDiff) string {
	if len(diff.ToCreate)+len(diff.ToRebuild)+len(diff.ToDrop) > 3 {
		return "update_schema"
	}
	var parts []string
	for _, group := range []struct {
		verb   string
		tables []string
	}{
		{"create", diff.ToCreate},
		{"rebuild", diff.ToRebuild},
		{"drop", diff.ToDrop},
	} {
		if len(group.tables) == 0 {
			continue
		}
		parts = append(parts, group.verb)
		for _, t := range group.tables {
			parts = append(parts, strings.Trim(schema.ToSnakeCase(t), "_"))
		}
	}
	return strings.ToLower(strings.Join(parts, "_"))
}
