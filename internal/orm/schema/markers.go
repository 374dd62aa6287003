package schema

import "reflect"

// Table marks a struct as a table model when embedded:
//
//	type Team struct {
//		schema.Table
//		ID   *int64
//		Name string
//	}
type Table struct{}

// Alt marks a struct as an alternate projection of table model T.
// Its field names must be a subset of T's.
type Alt[T any] struct{}

// Row marks a struct as an adhoc model. Plain structs with no marker are
// treated the same way.
type Row struct{}

// Union declares a field that holds one of two non-absent types.
// Unions are rejected at registration; a nullable reference is written
// as a pointer instead.
type Union[A, B any] struct {
	value any
}

// First returns a union holding a
func First[A, B any](a A) Union[A, B] { return Union[A, B]{value: a} }

// Second returns a union holding b
func Second[A, B any](b B) Union[A, B] { return Union[A, B]{value: b} }

// Value returns the held value
func (u Union[A, B]) Value() any { return u.value }

func (Union[A, B]) unionMembers() []reflect.Type {
	return []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()}
}

func (Alt[T]) altCounterpart() reflect.Type { return reflect.TypeFor[T]() }

type unionType interface{ unionMembers() []reflect.Type }

type altMarker interface{ altCounterpart() reflect.Type }

var (
	tableMarkerType = reflect.TypeFor[Table]()
	rowMarkerType   = reflect.TypeFor[Row]()
	unionIface      = reflect.TypeFor[unionType]()
	altIface        = reflect.TypeFor[altMarker]()
)

// classify inspects the embedded markers of a struct type. For alt models
// the counterpart type is returned as well.
func classify(t reflect.Type) (kind ModelKind, counterpart reflect.Type, marked bool) {
	if t.Kind() != reflect.Struct {
		return KindAdhoc, nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		switch {
		case f.Type == tableMarkerType:
			return KindTable, nil, true
		case f.Type == rowMarkerType:
			return KindAdhoc, nil, true
		case f.Type.Implements(altIface):
			m := reflect.Zero(f.Type).Interface().(altMarker)
			return KindAlt, m.altCounterpart(), true
		}
	}
	return KindAdhoc, nil, false
}

// isModelType reports whether t (pointer stripped) is a struct carrying a
// model marker. Plain structs such as time.Time are not models.
func isModelType(t reflect.Type) bool {
	_, _, marked := classify(t)
	return marked
}

func unionMembersOf(t reflect.Type) ([]reflect.Type, bool) {
	if t.Kind() != reflect.Struct || !t.Implements(unionIface) {
		return nil, false
	}
	return reflect.Zero(t).Interface().(unionType).unionMembers(), true
}
