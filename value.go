package cloak

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// plaintextOf converts a marked field value to the bytes that get sealed.
func plaintextOf(f *fieldPlan, v reflect.Value) ([]byte, error) {
	switch f.kind {
	case kindString:
		return []byte(v.String()), nil
	case kindBytes:
		return append([]byte(nil), v.Bytes()...), nil
	default:
		data, err := msgpack.Marshal(v.Interface())
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.typ, err)
		}
		return data, nil
	}
}

// valueOf converts opened plaintext back into a value of the field's type.
func valueOf(f *fieldPlan, plaintext []byte) (reflect.Value, error) {
	out := reflect.New(f.typ).Elem()
	switch f.kind {
	case kindString:
		out.SetString(string(plaintext))
	case kindBytes:
		out.SetBytes(plaintext)
	default:
		if err := msgpack.Unmarshal(plaintext, out.Addr().Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("decode %s: %w", f.typ, err)
		}
	}
	return out, nil
}

// coerce checks that value can be stored in a field of type typ and
// returns it as a reflect.Value of exactly that type.
func coerce(typ reflect.Type, value any) (reflect.Value, error) {
	if value == nil {
		switch typ.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrInvalidValue, typ)
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(typ) {
		out := reflect.New(typ).Elem()
		out.Set(rv)
		return out, nil
	}
	if rv.Type().ConvertibleTo(typ) && rv.Kind() == typ.Kind() {
		return rv.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %T is not assignable to %s", ErrInvalidValue, value, typ)
}
