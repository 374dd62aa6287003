// Package codec converts field values to and from the primitives SQLite
// stores. Every column type that is not a model reference goes through a
// Registry, which also names the column type used in generated DDL.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned when a type already has a codec
	ErrAlreadyRegistered = errors.New("codec already registered")

	// ErrDecode is wrapped when a stored value cannot be converted back
	ErrDecode = errors.New("cannot decode stored value")
)

// UnregisteredFieldTypeError is returned for a field type with no codec
type UnregisteredFieldTypeError struct {
	Type reflect.Type
}

func (e *UnregisteredFieldTypeError) Error() string {
	return fmt.Sprintf("no codec registered for field type %s", e.Type)
}

// Codec converts one Go type.
//
// Encode receives a non-pointer value of the type and returns a driver
// value. Decode receives the raw driver value (never nil) and writes the
// result into dst, which is settable and of the type.
type Codec struct {
	ColumnType string
	Encode     func(v reflect.Value) (any, error)
	Decode     func(raw any, dst reflect.Value) error
}

// Registry maps Go types to codecs
type Registry struct {
	mu     sync.RWMutex
	codecs map[reflect.Type]*Codec
}

// NewRegistry returns a registry holding the built-in codecs
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[reflect.Type]*Codec)}
	for t, c := range builtinCodecs() {
		r.codecs[t] = c
	}
	return r
}

// Register adds a codec for t. Registering a type twice is an error.
func (r *Registry) Register(t reflect.Type, c Codec) error {
	if c.Encode == nil || c.Decode == nil || c.ColumnType == "" {
		return fmt.Errorf("codec for %s needs a column type, an encoder and a decoder", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[t]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
	}
	r.codecs[t] = &c
	return nil
}

// Register adds a typed codec for T
func Register[T any](r *Registry, columnType string, encode func(T) (any, error), decode func(raw any) (T, error)) error {
	return r.Register(reflect.TypeFor[T](), Codec{
		ColumnType: columnType,
		Encode: func(v reflect.Value) (any, error) {
			return encode(v.Interface().(T))
		},
		Decode: func(raw any, dst reflect.Value) error {
			out, err := decode(raw)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(&out).Elem())
			return nil
		},
	})
}

// Lookup returns the codec for t. Exact registrations win over the codecs
// shared by every type of a basic kind.
func (r *Registry) Lookup(t reflect.Type) (*Codec, bool) {
	r.mu.RLock()
	c, ok := r.codecs[t]
	r.mu.RUnlock()
	if ok {
		return c, true
	}
	return kindCodec(t)
}

// Has reports whether t can be stored
func (r *Registry) Has(t reflect.Type) bool {
	_, ok := r.Lookup(derefType(t))
	return ok
}

// ColumnType returns the column type name for t, pointer stripped
func (r *Registry) ColumnType(t reflect.Type) (string, error) {
	base := derefType(t)
	c, ok := r.Lookup(base)
	if !ok {
		return "", &UnregisteredFieldTypeError{Type: base}
	}
	return c.ColumnType, nil
}

// Encode converts v, whose type is t, to a driver value. A nil pointer
// encodes as NULL.
func (r *Registry) Encode(t reflect.Type, v reflect.Value) (any, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	base := derefType(t)
	c, ok := r.Lookup(base)
	if !ok {
		return nil, &UnregisteredFieldTypeError{Type: base}
	}
	return c.Encode(v)
}

// Decode converts a raw driver value into a value of type t. NULL decodes
// to the zero value, which for pointer types is nil.
func (r *Registry) Decode(t reflect.Type, raw any) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if raw == nil {
		return out, nil
	}

	base := derefType(t)
	c, ok := r.Lookup(base)
	if !ok {
		return reflect.Value{}, &UnregisteredFieldTypeError{Type: base}
	}

	dst := reflect.New(base).Elem()
	if err := c.Decode(raw, dst); err != nil {
		return reflect.Value{}, err
	}

	if t.Kind() != reflect.Pointer {
		return dst, nil
	}
	ptr := reflect.New(base)
	ptr.Elem().Set(dst)
	return ptr, nil
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeName returns the column type name used for a registered opaque type.
// Named types use their qualified Go name, unnamed ones the fallback.
func TypeName(t reflect.Type, fallback string) string {
	if t.Name() != "" {
		return t.String()
	}
	return fallback
}

func decodeError(raw any, t reflect.Type) error {
	return fmt.Errorf("%w: %T into %s", ErrDecode, raw, t)
}
