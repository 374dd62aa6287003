package relationships

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// FillAll loads one backpop field for many owners of the same model with a
// single query and stores each owner's rows in it
func (l *Loader) FillAll(ctx context.Context, owners []any, field string) error {
	if len(owners) == 0 {
		return nil
	}

	var (
		edge   schema.BackpopEdge
		params = make(map[string]any, len(owners))
		marks  = make([]string, 0, len(owners))
		byID   = make(map[int64][]reflect.Value, len(owners))
	)
	for i, owner := range owners {
		v := reflect.ValueOf(owner)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return fmt.Errorf("fill backpops: need non-nil pointers, got %T", owner)
		}
		e, id, err := l.resolve(owner, field)
		if err != nil {
			return err
		}
		if i > 0 && e.Owner != edge.Owner {
			return fmt.Errorf("fill backpops: owners mix %s and %s", edge.Owner.Name, e.Owner.Name)
		}
		edge = e

		if _, seen := byID[id]; !seen {
			name := fmt.Sprintf("o%d", len(marks))
			marks = append(marks, ":"+name)
			params[name] = id
		}
		byID[id] = append(byID[id], v)
	}

	rows, err := l.ops.Query(ctx, edge.Target.GoType,
		fmt.Sprintf("{%s} IN (%s)", edge.ForwardField, strings.Join(marks, ", ")),
		params)
	if err != nil {
		return err
	}

	fwd, _ := edge.Target.Field(edge.ForwardField)
	grouped := make(map[int64][]any, len(byID))
	for _, r := range rows {
		ref := reflect.ValueOf(r).Elem().FieldByIndex(fwd.Index)
		if ref.Kind() == reflect.Pointer {
			ref = ref.Elem()
		}
		id := ref.FieldByIndex(edge.Owner.TableModel().IDSpec().Index).Elem().Int()
		grouped[id] = append(grouped[id], r)
	}

	f, _ := edge.Owner.Field(field)
	for id, owners := range byID {
		for _, v := range owners {
			setBackpop(v.Elem().FieldByIndex(f.Index), f, grouped[id])
		}
	}
	return nil
}
