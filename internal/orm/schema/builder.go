package schema

import (
	"reflect"
	"time"
)

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

// builder carries the state of one batch of builds. A batch starts with a
// single GetOrBuild call and contains every model reached from it that was
// not registered yet. The batch is published only if all of it validates.
type builder struct {
	r        *Registry
	building map[reflect.Type]*ModelMeta
	order    []*ModelMeta
}

func newBuilder(r *Registry) *builder {
	return &builder{r: r, building: make(map[reflect.Type]*ModelMeta)}
}

// build populates metadata for t. A type already in progress is returned
// as is, so self and mutual references terminate.
func (b *builder) build(t reflect.Type) (*ModelMeta, error) {
	if m, ok := b.r.Lookup(t); ok {
		return m, nil
	}
	if m, ok := b.building[t]; ok {
		return m, nil
	}

	kind, counterpartType, _ := classify(t)
	meta := newModelMeta(t, kind)
	b.building[t] = meta
	b.order = append(b.order, meta)

	switch kind {
	case KindTable:
		meta.TableName = meta.Name
	case KindAlt:
		counterpart, err := b.build(counterpartType)
		if err != nil {
			return nil, err
		}
		meta.Counterpart = counterpart
		meta.TableName = counterpart.TableName
	}

	reflected, err := ReflectFields(t)
	if err != nil {
		return nil, err
	}
	for _, rf := range reflected {
		fs := &FieldSpec{
			Name:     rf.Name,
			GoName:   rf.GoName,
			Index:    rf.Index,
			Type:     rf.Type,
			BaseType: rf.BaseType,
			Nullable: rf.Nullable,
		}
		if err := b.assignRole(meta, fs, rf); err != nil {
			return nil, err
		}
		meta.Fields = append(meta.Fields, fs)
		meta.byName[fs.Name] = fs
		if fs.GoName != fs.Name {
			meta.byName[fs.GoName] = fs
		}
	}
	return meta, nil
}

func (b *builder) assignRole(owner *ModelMeta, fs *FieldSpec, rf ReflectedField) error {
	switch {
	case rf.UnionMembers != nil:
		// rejected by validate; the role only matters for error reporting
		fs.Role = RoleUnknown

	case isModelType(rf.BaseType):
		target, err := b.build(rf.BaseType)
		if err != nil {
			return err
		}
		fs.Role = RoleForward
		fs.Target = target
		owner.ForwardEdges[fs.Name] = target

	case rf.BaseType.Kind() == reflect.Slice && rf.BaseType != bytesType && isModelType(derefType(rf.BaseType.Elem())):
		elem := rf.BaseType.Elem()
		fs.ElemPointer = elem.Kind() == reflect.Pointer
		fs.BaseType = derefType(elem)
		target, err := b.build(fs.BaseType)
		if err != nil {
			return err
		}
		fs.Role = RoleBackpop
		fs.Target = target

	case isBuiltinScalar(rf.BaseType):
		fs.Role = RoleScalar

	default:
		fs.Role = RoleUnknown
	}
	return nil
}

func isBuiltinScalar(t reflect.Type) bool {
	if t == timeType || t == bytesType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
