package cloak

import (
	"encoding"
	"encoding/xml"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
	"time"
)

var (
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	xmlNameType       = reflect.TypeFor[xml.Name]()
	timeType          = reflect.TypeFor[time.Time]()
)

// KnownTypes yields the concrete runtime types reachable from v's exported
// fields, for serializers that need an explicit type list.
//
// Traversal is depth-first in field order and recurses into every non-leaf
// value. Primitive and text types are leaves and are never yielded. Each
// type is yielded once. The sequence is lazy and cannot be restarted: a
// second range over it yields nothing.
func KnownTypes(v any) iter.Seq[reflect.Type] {
	seen := make(map[reflect.Type]bool)
	visited := make(map[visit]bool)
	return func(yield func(reflect.Type) bool) {
		if v == nil {
			return
		}
		w := &typeWalker{seen: seen, visited: visited, yield: yield}
		w.children(reflect.ValueOf(v))
	}
}

// GetKnownTypes collects KnownTypes(v).
func GetKnownTypes(v any) []reflect.Type {
	var out []reflect.Type
	for t := range KnownTypes(v) {
		out = append(out, t)
	}
	return out
}

// KnownTypes yields the types reachable from e, including T and the
// ciphertext types. Reads must not race with Set.
func (e *Encrypted[T]) KnownTypes() iter.Seq[reflect.Type] {
	return KnownTypes(e)
}

// visit identifies a walked pointer. A struct and its first field share an
// address, so the pointee type is part of the key.
type visit struct {
	addr uintptr
	typ  reflect.Type
}

type typeWalker struct {
	seen    map[reflect.Type]bool
	visited map[visit]bool
	yield   func(reflect.Type) bool
}

// children walks the values held by v without yielding v's own type.
// It returns false once the consumer stops.
func (w *typeWalker) children(v reflect.Value) bool {
	v, ok := w.deref(v)
	if !ok {
		return true
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if !w.value(v.Field(i)) {
				return false
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !w.value(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			if !w.value(k) || !w.value(v.MapIndex(k)) {
				return false
			}
		}
	}
	return true
}

// value yields v's concrete type if it is new and walks into it.
func (w *typeWalker) value(v reflect.Value) bool {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return true
	}

	t := v.Type()
	if isLeafType(t) {
		return true
	}
	if !w.seen[t] {
		w.seen[t] = true
		if !w.yield(t) {
			return false
		}
	}
	return w.children(v)
}

// deref follows pointers, stopping at nil or at a pointer already walked.
func (w *typeWalker) deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		if v.Kind() == reflect.Pointer {
			p := visit{addr: v.Pointer(), typ: v.Type()}
			if w.visited[p] {
				return v, false
			}
			w.visited[p] = true
		}
		v = v.Elem()
	}
	return v, true
}

// isLeafType reports whether t is a primitive or text type.
func isLeafType(t reflect.Type) bool {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	switch base {
	case xmlNameType, timeType:
		return true
	}
	switch base.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	case reflect.Slice:
		if base.Elem().Kind() == reflect.Uint8 {
			return true
		}
	}
	return base.Implements(textMarshalerType) || reflect.PointerTo(base).Implements(textMarshalerType)
}
