package crud

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/query"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// Find loads the row of model with the given id, together with every row
// its forward references reach. The result is a pointer to the model type.
func (o *Operations) Find(ctx context.Context, model any, id *int64) (any, error) {
	meta, err := o.lookupMeta(model)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: cannot SELECT, id=None", ErrIDNone)
	}

	st := newLoadState()
	dst := reflect.New(meta.GoType)
	if meta.IsTable() {
		st.memo[rowKey{meta: meta, id: *id}] = dst
	}
	if err := o.fetchInto(ctx, meta, *id, st, dst); err != nil {
		return nil, err
	}
	if err := o.resolveDeferred(ctx, st); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

// FindBy loads the first row of model whose columns equal the given values.
// Keys are column or Go field names. A forward reference matches a row
// value, a pointer to one or an id.
func (o *Operations) FindBy(ctx context.Context, model any, fields map[string]any) (any, error) {
	meta, err := o.lookupMeta(model)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoFieldsSpecified
	}

	sb, err := query.NewSelect(meta)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := meta.Field(name)
		if !ok || !f.Role.IsColumn() {
			return nil, fmt.Errorf("%w: %s has no column %q; valid fields are %s",
				ErrInvalidField, meta.Name, name, strings.Join(meta.ColumnNames(), ", "))
		}
		v, err := o.encodeLookup(f, fields[name])
		if err != nil {
			return nil, err
		}
		sb.WhereEqual(f.Name, v)
	}

	rows, err := o.selectRows(ctx, sb.Limit(1), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no %s matches %v", ErrNotFound, meta.Name, fields)
	}

	st := newLoadState()
	dst := reflect.New(meta.GoType)
	if err := o.load(sb.Layout(), rows[0], st, dst); err != nil {
		return nil, err
	}
	if err := o.resolveDeferred(ctx, st); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

// Query loads every row matching a predicate template. For table and alt
// models the template is the WHERE clause, with {field.path} placeholders
// joined as needed; an empty template selects every row. For adhoc models
// it is the whole statement, and its result columns must line up with the
// model's fields. Each result is a pointer to the model type.
func (o *Operations) Query(ctx context.Context, model any, template string, params map[string]any) ([]any, error) {
	meta, err := o.metaOf(model)
	if err != nil {
		return nil, err
	}

	var (
		sqlText string
		args    []any
		layout  *query.Layout
	)
	if meta.HasTable() {
		sb, err := query.NewSelect(meta)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(template) != "" {
			sb.Where(template, params)
		}
		sqlText, args, err = sb.ToSQL()
		if err != nil {
			return nil, err
		}
		layout = sb.Layout()
	} else {
		sqlText, args, err = query.RenderTemplate(template, nil, params)
		if err != nil {
			return nil, err
		}
		if layout, err = layoutFor(meta); err != nil {
			return nil, err
		}
	}

	tuples, err := o.collect(ctx, sqlText, args, layout.Width(), 0)
	if err != nil {
		return nil, err
	}

	st := newLoadState()
	out := make([]any, 0, len(tuples))
	for _, values := range tuples {
		dst := reflect.New(meta.GoType)
		if err := o.load(layout, values, st, dst); err != nil {
			return nil, err
		}
		out = append(out, dst.Interface())
	}
	if err := o.resolveDeferred(ctx, st); err != nil {
		return nil, err
	}
	return out, nil
}

// lookupMeta resolves a model that rows can be looked up by id on
func (o *Operations) lookupMeta(model any) (*schema.ModelMeta, error) {
	meta, err := o.metaOf(model)
	if err != nil {
		return nil, err
	}
	if meta.IsAdhoc() {
		return nil, fmt.Errorf("%w: %s", ErrLookupByAdhocModel, meta.Name)
	}
	return meta, nil
}

// fetchInto loads the row (meta, id) into dst
func (o *Operations) fetchInto(ctx context.Context, meta *schema.ModelMeta, id int64, st *loadState, dst reflect.Value) error {
	sb, err := query.NewSelect(meta)
	if err != nil {
		return err
	}
	rows, err := o.selectRows(ctx, sb.WhereEqual(schema.IDField, id).Limit(1), 1)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: no row with id=%d in table %s", ErrNotFound, id, meta.TableName)
	}
	return o.load(sb.Layout(), rows[0], st, dst)
}

// resolveDeferred fetches unjoined references until none are left. Each
// fetch may queue more; the memo keeps a cycle from queueing forever.
func (o *Operations) resolveDeferred(ctx context.Context, st *loadState) error {
	for len(st.queue) > 0 {
		d := st.queue[0]
		st.queue = st.queue[1:]
		if err := o.fetchInto(ctx, d.Meta, d.ID, st, d.Into); err != nil {
			return fmt.Errorf("load %s.id=%d: %w", d.Meta.Name, d.ID, err)
		}
	}
	st.applyCopies()
	return nil
}

func (o *Operations) selectRows(ctx context.Context, sb *query.SelectBuilder, limit int) ([][]any, error) {
	sqlText, args, err := sb.ToSQL()
	if err != nil {
		return nil, err
	}
	return o.collect(ctx, sqlText, args, sb.Layout().Width(), limit)
}

// collect reads up to limit rows (all when limit is 0) and closes the result
// set before returning, so follow-up fetches can reuse the connection
func (o *Operations) collect(ctx context.Context, sqlText string, args []any, width, limit int) ([][]any, error) {
	rows, err := o.query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, ConvertDBError(err)
	}
	if len(cols) != width {
		return nil, fmt.Errorf("query returns %d columns, expected %d", len(cols), width)
	}

	var out [][]any
	for rows.Next() {
		values, err := scanValues(rows, width)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		out = append(out, values)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}
	return out, nil
}

// encodeLookup encodes a FindBy value the way the column stores it
func (o *Operations) encodeLookup(f *schema.FieldSpec, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, nil
	}

	if f.Role == schema.RoleForward {
		base := v
		if base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		if base.Type() == f.Target.GoType {
			id := idOf(f.Target, base)
			if id == nil {
				return nil, fmt.Errorf("%w: %s value for %s", ErrIDNone, f.Target.Name, f.Name)
			}
			return *id, nil
		}
	}

	encoded, err := o.codecs.Encode(v.Type(), v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return encoded, nil
}
