package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// ErrNotATable is returned when DDL is requested for an alt or adhoc model
var ErrNotATable = errors.New("only table models have a table")

// DDLGenerator generates SQLite DDL statements from model metadata
type DDLGenerator struct {
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(codecs *codec.Registry) *DDLGenerator {
	return &DDLGenerator{typeMapper: NewTypeMapper(codecs)}
}

// GenerateCreateTable generates the CREATE TABLE statement of a table model
func (g *DDLGenerator) GenerateCreateTable(meta *schema.ModelMeta) (string, error) {
	if meta == nil {
		return "", fmt.Errorf("model cannot be nil")
	}
	if !meta.IsTable() {
		return "", fmt.Errorf("%w: %s is an %s model", ErrNotATable, meta.Name, meta.Kind)
	}

	cols := meta.Columns()
	defs := make([]string, 0, len(cols))
	for _, f := range cols {
		def, err := g.generateColumnDefinition(f)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", meta.Name, f.Name, err)
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", meta.TableName, strings.Join(defs, ", ")), nil
}

// generateColumnDefinition renders one column, e.g.
//
//	id [INTEGER] PRIMARY KEY NOT NULL
//	team [Team_ID] NULL REFERENCES Team(id)
func (g *DDLGenerator) generateColumnDefinition(f *schema.FieldSpec) (string, error) {
	if f.IsID() {
		return fmt.Sprintf("%s [%s] PRIMARY KEY NOT NULL", f.Name, codec.TypeInteger), nil
	}

	columnType, err := g.typeMapper.MapType(f)
	if err != nil {
		return "", err
	}
	def := fmt.Sprintf("%s [%s] %s", f.Name, columnType, g.typeMapper.MapNullability(f))
	if f.Role == schema.RoleForward {
		def += fmt.Sprintf(" REFERENCES %s(id)", f.Target.TableName)
	}
	return def, nil
}

// GenerateDropTable generates a DROP TABLE statement
func (g *DDLGenerator) GenerateDropTable(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

// GenerateSchema renders the tables of models, referenced tables first
func (g *DDLGenerator) GenerateSchema(models []*schema.ModelMeta) ([]string, error) {
	byTable := make(map[string]*schema.ModelMeta, len(models))
	var tables []*schema.ModelMeta
	for _, m := range models {
		if m.IsTable() {
			byTable[m.TableName] = m
			tables = append(tables, m)
		}
	}

	graph := schema.NewRelationshipGraph(tables)
	var out []string
	for _, name := range graph.TopologicalSort() {
		m, ok := byTable[name]
		if !ok {
			continue
		}
		ddl, err := g.GenerateCreateTable(m)
		if err != nil {
			return nil, err
		}
		out = append(out, ddl)
	}
	return out, nil
}

// NormalizeDDL collapses whitespace and drops identifier quotes so stored
// and generated statements compare equal. SQLite quotes the table name of a
// renamed table.
func NormalizeDDL(ddl string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(ddl, `"`, "")), " ")
}
