package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// RegisterJSON stores T as JSON text. Unnamed types such as []string or
// map[string]any use the column type JSON.
func RegisterJSON[T any](r *Registry) error {
	t := reflect.TypeFor[T]()
	return r.Register(t, Codec{
		ColumnType: TypeName(t, "JSON"),
		Encode: func(v reflect.Value) (any, error) {
			b, err := json.Marshal(v.Interface())
			if err != nil {
				return nil, fmt.Errorf("encode %s as json: %w", t, err)
			}
			return string(b), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			var b []byte
			switch x := raw.(type) {
			case string:
				b = []byte(x)
			case []byte:
				b = x
			default:
				return decodeError(raw, t)
			}
			if err := json.Unmarshal(b, dst.Addr().Interface()); err != nil {
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
			return nil
		},
	})
}

// RegisterMsgpack stores T as a msgpack blob
func RegisterMsgpack[T any](r *Registry) error {
	t := reflect.TypeFor[T]()
	return r.Register(t, Codec{
		ColumnType: TypeName(t, "MSGPACK"),
		Encode: func(v reflect.Value) (any, error) {
			b, err := msgpack.Marshal(v.Interface())
			if err != nil {
				return nil, fmt.Errorf("encode %s as msgpack: %w", t, err)
			}
			return b, nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			b, ok := raw.([]byte)
			if !ok {
				return decodeError(raw, t)
			}
			if err := msgpack.Unmarshal(b, dst.Addr().Interface()); err != nil {
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
			return nil
		},
	})
}
