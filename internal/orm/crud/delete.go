package crud

import (
	"context"
	"fmt"
	"reflect"
)

// Delete removes the row of model with the given id
func (o *Operations) Delete(ctx context.Context, model any, id int64) error {
	meta, err := o.metaOf(model)
	if err != nil {
		return err
	}
	if !meta.IsTable() {
		return fmt.Errorf("%w: %s is an %s model", ErrNonTableModelImmutable, meta.Name, meta.Kind)
	}

	res, err := o.exec(ctx, o.stmts.get(meta).delete, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", meta.TableName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", meta.TableName, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: cannot DELETE, no row with id=%d in table %s", ErrNotFound, id, meta.TableName)
	}
	return nil
}

// DeleteRow removes the stored row a row value or pointer stands for
func (o *Operations) DeleteRow(ctx context.Context, row any) error {
	meta, err := o.metaOf(row)
	if err != nil {
		return err
	}
	if !meta.IsTable() {
		return fmt.Errorf("%w: %s is an %s model", ErrNonTableModelImmutable, meta.Name, meta.Kind)
	}
	v := reflect.Indirect(reflect.ValueOf(row))
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("%w: cannot DELETE a nil %s", ErrIDNone, meta.Name)
	}
	id := idOf(meta, v)
	if id == nil {
		return fmt.Errorf("%w: cannot DELETE, id=None", ErrIDNone)
	}
	return o.Delete(ctx, meta.GoType, *id)
}
