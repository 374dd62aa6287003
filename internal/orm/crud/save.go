package crud

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// Save inserts row when its id is nil and updates it otherwise, returning
// a copy carrying the assigned id. row may be a struct or a pointer to one;
// the result has the same shape.
//
// A shallow save writes only the row's own columns, so every forward
// reference must be nil or point at a row that already has an id. A deep
// save first saves the rows forward references point at, children before
// parents, and the copy it returns references the saved children.
func (o *Operations) Save(ctx context.Context, row any, deep bool) (any, error) {
	s := o.newSaver()
	out, err := s.save(ctx, row, deep)
	if err != nil {
		return nil, err
	}
	s.log()
	return out, nil
}

// saver carries the identity of sub-rows already saved across the rows
// of one call
type saver struct {
	o *Operations

	// settled maps a source pointer to the saved copy standing in for it
	settled map[any]reflect.Value

	inserted int
	updated  int
}

func (o *Operations) newSaver() *saver {
	return &saver{o: o, settled: make(map[any]reflect.Value)}
}

func (s *saver) log() {
	s.o.logger.Debug("saved rows", zap.Int("inserted", s.inserted), zap.Int("updated", s.updated))
}

func (s *saver) save(ctx context.Context, row any, deep bool) (any, error) {
	v := reflect.ValueOf(row)
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, fmt.Errorf("cannot save a nil row")
	}
	meta, err := s.o.metaOf(row)
	if err != nil {
		return nil, err
	}
	if !meta.IsTable() {
		return nil, fmt.Errorf("%w: %s is an %s model", ErrNonTableModelImmutable, meta.Name, meta.Kind)
	}

	var key any
	if v.Kind() == reflect.Pointer {
		key = row
		v = v.Elem()
	}

	var out reflect.Value
	if deep {
		out, err = s.saveDeep(ctx, meta, v, key)
	} else {
		out = copyRow(meta, v)
		err = s.write(ctx, meta, out)
	}
	if err != nil {
		return nil, err
	}

	if key != nil {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

// saveFrame is a row on the deep save work stack
type saveFrame struct {
	meta *schema.ModelMeta
	src  reflect.Value // the struct being saved
	out  reflect.Value // pointer to the copy being written
	key  any           // source pointer, nil for rows held by value

	fields []*schema.FieldSpec
	next   int

	parent *saveFrame
	field  *schema.FieldSpec
}

// saveDeep walks forward references post-order with an explicit stack.
// A pointer reached again while its row is still on the stack is a cycle
// unless that row already has an id, in which case the reference is kept.
func (s *saver) saveDeep(ctx context.Context, meta *schema.ModelMeta, root reflect.Value, key any) (reflect.Value, error) {
	if key != nil {
		if out, ok := s.settled[key]; ok {
			return out, nil
		}
	}

	active := make(map[any]*saveFrame)
	push := func(stack []*saveFrame, meta *schema.ModelMeta, src reflect.Value, key any, parent *saveFrame, field *schema.FieldSpec) []*saveFrame {
		fr := &saveFrame{
			meta:   meta,
			src:    src,
			out:    copyRow(meta, src),
			key:    key,
			fields: meta.ForwardFields(),
			parent: parent,
			field:  field,
		}
		if key != nil {
			active[key] = fr
		}
		return append(stack, fr)
	}

	stack := push(nil, meta, root, key, nil, nil)
	var result reflect.Value
	for len(stack) > 0 {
		fr := stack[len(stack)-1]

		if fr.next < len(fr.fields) {
			f := fr.fields[fr.next]
			fr.next++

			fv := fr.src.FieldByIndex(f.Index)
			if fv.Kind() != reflect.Pointer {
				stack = push(stack, f.Target, fv, nil, fr, f)
				continue
			}
			if fv.IsNil() {
				continue
			}

			childKey := fv.Interface()
			if out, ok := s.settled[childKey]; ok {
				assignChild(fr, f, out)
				continue
			}
			if inflight, ok := active[childKey]; ok {
				if idOf(inflight.meta, inflight.src) == nil {
					return reflect.Value{}, &CycleDetectedError{Path: cyclePath(fr, inflight)}
				}
				assignChild(fr, f, inflight.out)
				continue
			}
			stack = push(stack, f.Target, fv.Elem(), childKey, fr, f)
			continue
		}

		// every reference is saved; write the row itself
		if err := s.write(ctx, fr.meta, fr.out); err != nil {
			return reflect.Value{}, fmt.Errorf("save %s: %w", fr.meta.Name, err)
		}
		stack = stack[:len(stack)-1]
		if fr.key != nil {
			delete(active, fr.key)
			s.settled[fr.key] = fr.out
		}
		if fr.parent != nil {
			assignChild(fr.parent, fr.field, fr.out)
		} else {
			result = fr.out
		}
	}
	return result, nil
}

// assignChild points the parent's copy at a saved child
func assignChild(parent *saveFrame, f *schema.FieldSpec, out reflect.Value) {
	dst := parent.out.Elem().FieldByIndex(f.Index)
	if dst.Kind() == reflect.Pointer {
		dst.Set(out)
		return
	}
	dst.Set(out.Elem())
}

// cyclePath names the models from the repeated row down to from, and
// the repeated row again
func cyclePath(from, repeated *saveFrame) []string {
	var path []string
	for fr := from; fr != nil; fr = fr.parent {
		path = append([]string{fr.meta.Name}, path...)
		if fr == repeated {
			break
		}
	}
	return append(path, repeated.meta.Name)
}

// copyRow returns a pointer to a copy of the struct src
func copyRow(meta *schema.ModelMeta, src reflect.Value) reflect.Value {
	out := reflect.New(meta.GoType)
	out.Elem().Set(src)
	return out
}

// write inserts or updates the row out points at, setting its id on insert
func (s *saver) write(ctx context.Context, meta *schema.ModelMeta, out reflect.Value) error {
	row := out.Elem()
	values, err := s.o.columnValues(meta, row)
	if err != nil {
		return err
	}
	stmts := s.o.stmts.get(meta)

	id := idOf(meta, row)
	if id == nil {
		res, err := s.o.exec(ctx, stmts.insert, append([]any{nil}, values...)...)
		if err != nil {
			return fmt.Errorf("insert into %s: %w", meta.TableName, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert into %s: %w", meta.TableName, err)
		}
		setID(meta, out, newID)
		s.inserted++
		return nil
	}

	args := values
	if len(args) == 0 {
		args = []any{*id}
	}
	res, err := s.o.exec(ctx, stmts.update, append(args, *id)...)
	if err != nil {
		return fmt.Errorf("update %s: %w", meta.TableName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", meta.TableName, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: cannot UPDATE, no row with id=%d in table %s", ErrNotFound, *id, meta.TableName)
	}
	s.updated++
	return nil
}

// columnValues encodes every column but the id, in declaration order.
// Forward references are stored as the id of the referenced row.
func (o *Operations) columnValues(meta *schema.ModelMeta, row reflect.Value) ([]any, error) {
	cols := meta.Columns()
	values := make([]any, 0, len(cols))
	for _, f := range cols {
		if f.IsID() {
			continue
		}
		fv := row.FieldByIndex(f.Index)
		if f.Role == schema.RoleForward {
			ref, err := referenceValue(meta, f, fv)
			if err != nil {
				return nil, err
			}
			values = append(values, ref)
			continue
		}
		v, err := o.codecs.Encode(f.Type, fv)
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", meta.Name, f.Name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func referenceValue(meta *schema.ModelMeta, f *schema.FieldSpec, fv reflect.Value) (any, error) {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	id := idOf(f.Target, fv)
	if id == nil {
		return nil, &UnpersistedRelationshipError{Model: meta.Name, Field: f.Name, Target: f.Target.Name}
	}
	return *id, nil
}

// SaveAll saves rows in order. Sub-rows shared between rows are saved once.
func (o *Operations) SaveAll(ctx context.Context, rows []any, deep bool) ([]any, error) {
	s := o.newSaver()
	out := make([]any, 0, len(rows))
	for i, row := range rows {
		saved, err := s.save(ctx, row, deep)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, saved)
	}
	s.log()
	return out, nil
}
