package relationships

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// LoadBackpop returns the rows whose forward reference points at owner,
// through the backpop field named field. Each row is a pointer to the
// field's element model.
func (l *Loader) LoadBackpop(ctx context.Context, owner any, field string) ([]any, error) {
	edge, id, err := l.resolve(owner, field)
	if err != nil {
		return nil, err
	}
	return l.ops.Query(ctx, edge.Target.GoType,
		fmt.Sprintf("{%s} = :owner", edge.ForwardField),
		map[string]any{"owner": id})
}

// Fill loads the named backpop fields of the row owner points at and
// stores them in it
func (l *Loader) Fill(ctx context.Context, owner any, fields ...string) error {
	v := reflect.ValueOf(owner)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("fill backpops: need a non-nil pointer, got %T", owner)
	}
	meta, err := l.ops.Registry().MetadataFor(owner)
	if err != nil {
		return err
	}

	for _, name := range fields {
		rows, err := l.LoadBackpop(ctx, owner, name)
		if err != nil {
			return err
		}
		f, _ := meta.Field(name)
		setBackpop(v.Elem().FieldByIndex(f.Index), f, rows)
	}
	return nil
}

// resolve finds the edge behind a backpop field and the owner's id
func (l *Loader) resolve(owner any, field string) (schema.BackpopEdge, int64, error) {
	meta, err := l.ops.Registry().MetadataFor(owner)
	if err != nil {
		return schema.BackpopEdge{}, 0, err
	}
	f, ok := meta.Field(field)
	if !ok || f.Role != schema.RoleBackpop {
		return schema.BackpopEdge{}, 0, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, meta.Name, field)
	}
	edge, err := l.ops.Registry().ResolveBackpop(meta, f.Name)
	if err != nil {
		return schema.BackpopEdge{}, 0, err
	}

	id, err := ownerID(meta, owner)
	if err != nil {
		return schema.BackpopEdge{}, 0, err
	}
	return edge, id, nil
}

func ownerID(meta *schema.ModelMeta, owner any) (int64, error) {
	v := reflect.Indirect(reflect.ValueOf(owner))
	if !v.IsValid() || meta.IDSpec() == nil {
		return 0, unsavedOwner(meta.Name)
	}
	idv := v.FieldByIndex(meta.IDSpec().Index)
	if idv.IsNil() {
		return 0, unsavedOwner(meta.Name)
	}
	return idv.Elem().Int(), nil
}

// setBackpop stores rows, pointers to the element model, in a slice field
// declared as []M or []*M
func setBackpop(dst reflect.Value, f *schema.FieldSpec, rows []any) {
	out := reflect.MakeSlice(dst.Type(), 0, len(rows))
	for _, r := range rows {
		rv := reflect.ValueOf(r)
		if !f.ElemPointer {
			rv = rv.Elem()
		}
		out = reflect.Append(out, rv)
	}
	dst.Set(out)
}
