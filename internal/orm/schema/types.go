// Package schema derives relational metadata from Go record types.
// It classifies each struct as a table, alt or adhoc model, assigns every
// field a role (scalar column, forward reference, backpop or unknown) and
// validates the structural rules that the query and persistence layers rely on.
package schema

import (
	"reflect"
	"sort"
	"sync"
)

// ModelKind classifies a record type by how it is backed by storage
type ModelKind int

const (
	// KindAdhoc is a record shaping the result of an arbitrary query
	KindAdhoc ModelKind = iota
	// KindTable is a record backed one-to-one by a table
	KindTable
	// KindAlt is a record projecting a subset of another table model's columns
	KindAlt
)

// String returns the string representation of the kind
func (k ModelKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindAlt:
		return "alt"
	case KindAdhoc:
		return "adhoc"
	default:
		return "unknown"
	}
}

// FieldRole is the closed set of roles a field can play.
// It is decided once at registration and never re-inspected per row.
type FieldRole int

const (
	// RoleScalar is a plain column with a built-in storage mapping
	RoleScalar FieldRole = iota
	// RoleForward is a foreign key to another table model
	RoleForward
	// RoleBackpop is a list of rows referencing this one
	RoleBackpop
	// RoleUnknown is a column whose mapping must come from the codec registry
	RoleUnknown
)

// String returns the string representation of the role
func (r FieldRole) String() string {
	switch r {
	case RoleScalar:
		return "scalar"
	case RoleForward:
		return "forward"
	case RoleBackpop:
		return "backpop"
	case RoleUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// IsColumn reports whether a field of this role is stored in the owner's table
func (r FieldRole) IsColumn() bool {
	return r != RoleBackpop
}

// FieldSpec describes a single field of a registered model
type FieldSpec struct {
	Name   string // column name
	GoName string
	Index  []int

	// Type is the declared Go type, BaseType has the pointer stripped
	// (and for backpops, the slice element with its pointer stripped).
	Type     reflect.Type
	BaseType reflect.Type
	Nullable bool
	Role     FieldRole

	// Target is set for forward and backpop fields
	Target *ModelMeta

	// ElemPointer is set for backpops declared as []*M
	ElemPointer bool
}

// IsID reports whether the field is the identifier field
func (f *FieldSpec) IsID() bool {
	return f.Name == IDField
}

// BackpopEdge is a resolved backpop: the list-valued field on the owner
// maps to exactly one forward field on Target pointing back at the owner.
type BackpopEdge struct {
	Owner        *ModelMeta
	Field        string
	Target       *ModelMeta
	ForwardField string
}

// IDField is the column name of the identifier field
const IDField = "id"

// ModelMeta is the relational metadata of one registered record type
type ModelMeta struct {
	GoType    reflect.Type
	Name      string
	Kind      ModelKind
	TableName string
	Fields    []*FieldSpec

	// ForwardEdges maps a forward field name to the referenced model
	ForwardEdges map[string]*ModelMeta

	// Counterpart is the table model an alt model projects
	Counterpart *ModelMeta

	byName map[string]*FieldSpec

	backpopMu    sync.RWMutex
	backpopEdges map[string]BackpopEdge
}

func newModelMeta(t reflect.Type, kind ModelKind) *ModelMeta {
	return &ModelMeta{
		GoType:       t,
		Name:         t.Name(),
		Kind:         kind,
		ForwardEdges: make(map[string]*ModelMeta),
		byName:       make(map[string]*FieldSpec),
		backpopEdges: make(map[string]BackpopEdge),
	}
}

// IsTable reports whether the model is backed one-to-one by a table
func (m *ModelMeta) IsTable() bool { return m.Kind == KindTable }

// IsAlt reports whether the model projects another table model
func (m *ModelMeta) IsAlt() bool { return m.Kind == KindAlt }

// IsAdhoc reports whether the model has no backing table
func (m *ModelMeta) IsAdhoc() bool { return m.Kind == KindAdhoc }

// HasTable reports whether queries can be issued against the model
func (m *ModelMeta) HasTable() bool { return m.Kind != KindAdhoc }

// TableModel returns the table model whose table backs this model.
// Adhoc models return nil.
func (m *ModelMeta) TableModel() *ModelMeta {
	switch m.Kind {
	case KindTable:
		return m
	case KindAlt:
		return m.Counterpart
	default:
		return nil
	}
}

// Field looks up a field by column name or Go field name
func (m *ModelMeta) Field(name string) (*FieldSpec, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// IDSpec returns the identifier field, or nil for adhoc models
func (m *ModelMeta) IDSpec() *FieldSpec {
	if m.Kind == KindAdhoc || len(m.Fields) == 0 {
		return nil
	}
	return m.Fields[0]
}

// Columns returns the fields stored in the model's table, in declaration order
func (m *ModelMeta) Columns() []*FieldSpec {
	cols := make([]*FieldSpec, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Role.IsColumn() {
			cols = append(cols, f)
		}
	}
	return cols
}

// ColumnNames returns the names of Columns()
func (m *ModelMeta) ColumnNames() []string {
	cols := m.Columns()
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Name
	}
	return names
}

// ForwardFields returns the forward reference fields in declaration order
func (m *ModelMeta) ForwardFields() []*FieldSpec {
	return m.fieldsWithRole(RoleForward)
}

// BackpopFields returns the backpop fields in declaration order
func (m *ModelMeta) BackpopFields() []*FieldSpec {
	return m.fieldsWithRole(RoleBackpop)
}

func (m *ModelMeta) fieldsWithRole(role FieldRole) []*FieldSpec {
	var out []*FieldSpec
	for _, f := range m.Fields {
		if f.Role == role {
			out = append(out, f)
		}
	}
	return out
}

// Backpop returns the resolved edge of a backpop field, if it was resolved
func (m *ModelMeta) Backpop(field string) (BackpopEdge, bool) {
	m.backpopMu.RLock()
	defer m.backpopMu.RUnlock()
	e, ok := m.backpopEdges[field]
	return e, ok
}

// BackpopEdges returns a copy of all resolved backpop edges
func (m *ModelMeta) BackpopEdges() map[string]BackpopEdge {
	m.backpopMu.RLock()
	defer m.backpopMu.RUnlock()
	out := make(map[string]BackpopEdge, len(m.backpopEdges))
	for k, v := range m.backpopEdges {
		out[k] = v
	}
	return out
}

func (m *ModelMeta) setBackpop(e BackpopEdge) {
	m.backpopMu.Lock()
	m.backpopEdges[e.Field] = e
	m.backpopMu.Unlock()
}

// signature is used to compare two field lists claiming the same table
func (m *ModelMeta) signature() []string {
	sig := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		sig = append(sig, f.Name+":"+f.Type.String())
	}
	return sig
}

func sortedMetas(metas []*ModelMeta) []*ModelMeta {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Name == metas[j].Name {
			return metas[i].GoType.String() < metas[j].GoType.String()
		}
		return metas[i].Name < metas[j].Name
	})
	return metas
}
