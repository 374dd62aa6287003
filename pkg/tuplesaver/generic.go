package tuplesaver

import (
	"context"
	"reflect"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
)

// Save saves row shallowly and returns a copy with its id set. T is a
// model struct or a pointer to one.
func Save[T any](ctx context.Context, e *Engine, row T) (T, error) {
	out, err := e.Save(ctx, row)
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// SaveDeep saves row and the rows it references, children first
func SaveDeep[T any](ctx context.Context, e *Engine, row T) (T, error) {
	out, err := e.SaveDeep(ctx, row)
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// Find loads the row of model T with the given id. T is the model struct.
func Find[T any](ctx context.Context, e *Engine, id int64) (*T, error) {
	out, err := e.Find(ctx, reflect.TypeFor[T](), &id)
	if err != nil {
		return nil, err
	}
	return out.(*T), nil
}

// FindBy loads the first row of model T matching every field
func FindBy[T any](ctx context.Context, e *Engine, fields map[string]any) (*T, error) {
	out, err := e.FindBy(ctx, reflect.TypeFor[T](), fields)
	if err != nil {
		return nil, err
	}
	return out.(*T), nil
}

// Query loads the rows of model T matching a predicate template
func Query[T any](ctx context.Context, e *Engine, template string, params map[string]any) ([]*T, error) {
	rows, err := e.Query(ctx, reflect.TypeFor[T](), template, params)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(rows))
	for i, r := range rows {
		out[i] = r.(*T)
	}
	return out, nil
}

// RegisterJSON stores fields of type T as JSON text
func RegisterJSON[T any](e *Engine) error {
	return codec.RegisterJSON[T](e.codecs)
}

// RegisterMsgpack stores fields of type T as msgpack blobs
func RegisterMsgpack[T any](e *Engine) error {
	return codec.RegisterMsgpack[T](e.codecs)
}

// RegisterCodec stores fields of type T under columnType through a custom
// encode and decode pair
func RegisterCodec[T any](e *Engine, columnType string, encode func(T) (any, error), decode func(raw any) (T, error)) error {
	return codec.Register[T](e.codecs, columnType, encode, decode)
}
