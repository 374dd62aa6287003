// Package codegen renders SQLite DDL from model metadata. The table layout
// is a deterministic function of the metadata: one column per stored field
// in declaration order, foreign keys for forward references.
package codegen

import (
	"fmt"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// TypeMapper maps fields to SQLite column type names
type TypeMapper struct {
	codecs *codec.Registry
}

// NewTypeMapper creates a TypeMapper backed by a codec registry
func NewTypeMapper(codecs *codec.Registry) *TypeMapper {
	if codecs == nil {
		codecs = codec.NewRegistry()
	}
	return &TypeMapper{codecs: codecs}
}

// MapType returns the column type of a stored field. A forward reference
// is named after the table it points at; every other field must have a
// codec.
func (tm *TypeMapper) MapType(f *schema.FieldSpec) (string, error) {
	switch {
	case f.IsID():
		return codec.TypeInteger, nil
	case f.Role == schema.RoleForward:
		return f.Target.TableName + "_ID", nil
	case f.Role == schema.RoleBackpop:
		return "", fmt.Errorf("backpop %s is not stored", f.Name)
	}
	return tm.codecs.ColumnType(f.Type)
}

// MapNullability returns NULL or NOT NULL
func (tm *TypeMapper) MapNullability(f *schema.FieldSpec) string {
	if f.Nullable {
		return "NULL"
	}
	return "NOT NULL"
}
