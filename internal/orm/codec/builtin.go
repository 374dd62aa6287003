package codec

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Column type names of the built-in codecs
const (
	TypeText    = "TEXT"
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeBlob    = "BLOB"
	TypeBool    = "bool"
	TypeTime    = "time.Time"
	TypeUUID    = "uuid.UUID"
)

// TimeLayout is how time.Time values are stored
const TimeLayout = time.RFC3339Nano

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
	uuidType  = reflect.TypeFor[uuid.UUID]()
)

func builtinCodecs() map[reflect.Type]*Codec {
	return map[reflect.Type]*Codec{
		timeType:  timeCodec,
		bytesType: bytesCodec,
		uuidType:  uuidCodec,
	}
}

var (
	stringCodec = &Codec{
		ColumnType: TypeText,
		Encode:     func(v reflect.Value) (any, error) { return v.String(), nil },
		Decode: func(raw any, dst reflect.Value) error {
			switch x := raw.(type) {
			case string:
				dst.SetString(x)
			case []byte:
				dst.SetString(string(x))
			case int64:
				dst.SetString(strconv.FormatInt(x, 10))
			case float64:
				dst.SetString(strconv.FormatFloat(x, 'g', -1, 64))
			default:
				return decodeError(raw, dst.Type())
			}
			return nil
		},
	}

	intCodec = &Codec{
		ColumnType: TypeInteger,
		Encode:     func(v reflect.Value) (any, error) { return v.Int(), nil },
		Decode: func(raw any, dst reflect.Value) error {
			n, err := toInt64(raw)
			if err != nil {
				return fmt.Errorf("%w (%s)", decodeError(raw, dst.Type()), err)
			}
			if dst.OverflowInt(n) {
				return fmt.Errorf("%w: %d overflows %s", ErrDecode, n, dst.Type())
			}
			dst.SetInt(n)
			return nil
		},
	}

	uintCodec = &Codec{
		ColumnType: TypeInteger,
		Encode: func(v reflect.Value) (any, error) {
			u := v.Uint()
			if u > 1<<63-1 {
				return nil, fmt.Errorf("%d does not fit an INTEGER column", u)
			}
			return int64(u), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			n, err := toInt64(raw)
			if err != nil || n < 0 || dst.OverflowUint(uint64(n)) {
				return decodeError(raw, dst.Type())
			}
			dst.SetUint(uint64(n))
			return nil
		},
	}

	floatCodec = &Codec{
		ColumnType: TypeReal,
		Encode:     func(v reflect.Value) (any, error) { return v.Float(), nil },
		Decode: func(raw any, dst reflect.Value) error {
			switch x := raw.(type) {
			case float64:
				dst.SetFloat(x)
			case int64:
				dst.SetFloat(float64(x))
			case string:
				f, err := strconv.ParseFloat(x, 64)
				if err != nil {
					return decodeError(raw, dst.Type())
				}
				dst.SetFloat(f)
			default:
				return decodeError(raw, dst.Type())
			}
			return nil
		},
	}

	boolCodec = &Codec{
		ColumnType: TypeBool,
		Encode: func(v reflect.Value) (any, error) {
			if v.Bool() {
				return int64(1), nil
			}
			return int64(0), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			switch x := raw.(type) {
			case bool:
				dst.SetBool(x)
			default:
				n, err := toInt64(raw)
				if err != nil {
					return decodeError(raw, dst.Type())
				}
				dst.SetBool(n != 0)
			}
			return nil
		},
	}

	bytesCodec = &Codec{
		ColumnType: TypeBlob,
		Encode: func(v reflect.Value) (any, error) {
			if v.IsNil() {
				return nil, nil
			}
			return v.Bytes(), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			switch x := raw.(type) {
			case []byte:
				dst.SetBytes(append([]byte(nil), x...))
			case string:
				dst.SetBytes([]byte(x))
			default:
				return decodeError(raw, dst.Type())
			}
			return nil
		},
	}

	timeCodec = &Codec{
		ColumnType: TypeTime,
		Encode: func(v reflect.Value) (any, error) {
			return v.Interface().(time.Time).Format(TimeLayout), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			var s string
			switch x := raw.(type) {
			case time.Time:
				dst.Set(reflect.ValueOf(x))
				return nil
			case string:
				s = x
			case []byte:
				s = string(x)
			default:
				return decodeError(raw, dst.Type())
			}
			t, err := time.Parse(TimeLayout, s)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		},
	}

	uuidCodec = &Codec{
		ColumnType: TypeUUID,
		Encode: func(v reflect.Value) (any, error) {
			return v.Interface().(uuid.UUID).String(), nil
		},
		Decode: func(raw any, dst reflect.Value) error {
			var (
				id  uuid.UUID
				err error
			)
			switch x := raw.(type) {
			case string:
				id, err = uuid.Parse(x)
			case []byte:
				if len(x) == 16 {
					id, err = uuid.FromBytes(x)
				} else {
					id, err = uuid.ParseBytes(x)
				}
			default:
				return decodeError(raw, dst.Type())
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
			dst.Set(reflect.ValueOf(id))
			return nil
		},
	}
)

// kindCodec serves named types whose kind is a basic one, such as
// `type Color string`
func kindCodec(t reflect.Type) (*Codec, bool) {
	switch t.Kind() {
	case reflect.String:
		return stringCodec, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intCodec, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintCodec, true
	case reflect.Float32, reflect.Float64:
		return floatCodec, true
	case reflect.Bool:
		return boolCodec, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesCodec, true
		}
	}
	return nil, false
}

func toInt64(raw any) (int64, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
