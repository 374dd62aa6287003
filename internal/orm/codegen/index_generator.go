package codegen

import (
	"fmt"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// GenerateForeignKeyIndexes returns one CREATE INDEX statement per forward
// reference column of a table model. Backpop loads filter on these columns.
func (g *DDLGenerator) GenerateForeignKeyIndexes(meta *schema.ModelMeta) []string {
	if !meta.IsTable() {
		return nil
	}
	var out []string
	for _, f := range meta.ForwardFields() {
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			IndexName(meta.TableName, f.Name), meta.TableName, f.Name))
	}
	return out
}

// IndexName names the index over one column of a table
func IndexName(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}
