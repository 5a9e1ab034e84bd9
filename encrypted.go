package cloak

import (
	"context"
	"encoding/xml"
	"fmt"
	"reflect"
	"sync"
)

// Ciphertext is the stored form of one sealed field.
type Ciphertext struct {
	// Field is the marked field name.
	Field string `json:"field" xml:"field,attr" yaml:"field" msgpack:"field" bson:"field"`

	// Data is the base64-encoded framed ciphertext.
	Data string `json:"data" xml:",chardata" yaml:"data" msgpack:"data" bson:"data"`
}

// Encrypted is the encryption-capable form of a plain struct T.
//
// Value holds T's fields. Unmarked fields pass through and may be read or
// written directly. Marked fields are kept zero in Value; their
// contents live in Sealed as ciphertext and are reached through Get and Set,
// which decrypt and encrypt with keys from the Instance, Type and Global
// keyrings.
//
// An Encrypted value that came from a codec rather than AsEncrypted is
// unlinked: its ciphertext is intact but it has no interceptor until Relink
// is called.
//
// Plaintext assigned directly to a marked field of Value is never encoded:
// Processor.Store seals it on a linked value and drops it on an unlinked
// one, and Open ignores it.
type Encrypted[T any] struct {
	XMLName xml.Name     `json:"-" xml:"encrypted" yaml:"-" msgpack:"-" bson:"-"`
	Value   T            `json:"value" xml:"value" yaml:"value" msgpack:"value" bson:"value"`
	Sealed  []Ciphertext `json:"sealed,omitempty" xml:"sealed>ciphertext,omitempty" yaml:"sealed,omitempty" msgpack:"sealed,omitempty" bson:"sealed,omitempty"`

	mu   sync.Mutex
	link *instance
}

// instance is the live link between an Encrypted value and its interceptor.
type instance struct {
	id          string
	entry       *TypeEntry
	registry    *Registry
	keyring     *Keyring
	interceptor *interceptor
}

// ID returns the tracked instance's identifier, or "" if unlinked.
func (e *Encrypted[T]) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return ""
	}
	return e.link.id
}

// Linked reports whether e has a live interceptor.
func (e *Encrypted[T]) Linked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link != nil
}

// Get returns the named field's value. For a marked field with no usable key
// in scope, Get returns a Locked value and a nil error.
func (e *Encrypted[T]) Get(ctx context.Context, field string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.link == nil {
		return nil, ErrInstanceNotTracked
	}
	if f, ok := e.link.entry.plan.field(field); ok {
		v, locked, err := e.link.interceptor.open(ctx, f, e.sealed(field))
		if err != nil {
			return nil, err
		}
		if locked != nil {
			return *locked, nil
		}
		return v.Interface(), nil
	}

	fv, err := e.plainField(field)
	if err != nil {
		return nil, err
	}
	return fv.Interface(), nil
}

// Set assigns value to the named field. Marked fields are encrypted with the
// preferred key; if none is in scope Set fails with ErrNoEncryptionKey and
// the stored ciphertext is left unchanged.
func (e *Encrypted[T]) Set(ctx context.Context, field string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.link == nil {
		return ErrInstanceNotTracked
	}
	if f, ok := e.link.entry.plan.field(field); ok {
		v, err := coerce(f.typ, value)
		if err != nil {
			return fmt.Errorf("set %s: %w", field, err)
		}
		data, err := e.link.interceptor.seal(ctx, f, v)
		if err != nil {
			return err
		}
		e.store(field, data)
		return nil
	}

	fv, err := e.plainField(field)
	if err != nil {
		return err
	}
	v, err := coerce(fv.Type(), value)
	if err != nil {
		return fmt.Errorf("set %s: %w", field, err)
	}
	fv.Set(v)
	return nil
}

// Open returns a copy of T with every readable marked field decrypted.
// Marked fields with no usable key are zero and named in locked. Plaintext
// assigned directly to a marked field of Value is never returned.
func (e *Encrypted[T]) Open(ctx context.Context) (out T, locked []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.link == nil {
		return out, nil, ErrInstanceNotTracked
	}

	out = e.Value
	plan := e.link.entry.plan
	clearMarked(plan, &out)
	rv := reflect.ValueOf(&out).Elem()
	for i := range plan.marked {
		f := &plan.marked[i]
		v, l, err := e.link.interceptor.open(ctx, f, e.sealed(f.name))
		if err != nil {
			var zero T
			return zero, nil, err
		}
		if l != nil {
			locked = append(locked, f.name)
			continue
		}
		rv.FieldByIndex(f.index).Set(v)
	}
	return out, locked, nil
}

// LockedFields names the marked fields that would read as Locked.
func (e *Encrypted[T]) LockedFields(ctx context.Context) ([]string, error) {
	_, locked, err := e.Open(ctx)
	return locked, err
}

// LocalKeyring returns the Instance keyring.
func (e *Encrypted[T]) LocalKeyring() (*Keyring, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return nil, ErrInstanceNotTracked
	}
	return e.link.keyring, nil
}

// TypeKeyring returns the Type keyring shared by every instance of T.
func (e *Encrypted[T]) TypeKeyring() (*Keyring, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return nil, ErrInstanceNotTracked
	}
	return e.link.entry.Keyring, nil
}

// GlobalKeyring returns the Global keyring of the registry e is linked to.
func (e *Encrypted[T]) GlobalKeyring() (*Keyring, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return nil, ErrInstanceNotTracked
	}
	return e.link.interceptor.global, nil
}

// UnifiedKeyring returns a read-only union of the Global, Type and Instance
// keyrings. Changes to it cannot reach the live scopes.
func (e *Encrypted[T]) UnifiedKeyring() (*Keyring, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link == nil {
		return nil, ErrInstanceNotTracked
	}
	return e.link.interceptor.unified(), nil
}

// Field reads a marked or unmarked field as V. ok is false when the field
// is locked.
func Field[V, T any](ctx context.Context, e *Encrypted[T], name string) (v V, ok bool, err error) {
	raw, err := e.Get(ctx, name)
	if err != nil {
		return v, false, err
	}
	if IsLocked(raw) {
		return v, false, nil
	}
	if raw == nil {
		return v, true, nil
	}
	typed, ok := raw.(V)
	if !ok {
		return v, false, fmt.Errorf("%w: field %s is %T", ErrInvalidValue, name, raw)
	}
	return typed, true, nil
}

// sealed returns the stored ciphertext for field, or "".
func (e *Encrypted[T]) sealed(field string) string {
	for _, c := range e.Sealed {
		if c.Field == field {
			return c.Data
		}
	}
	return ""
}

func (e *Encrypted[T]) store(field, data string) {
	for i := range e.Sealed {
		if e.Sealed[i].Field == field {
			e.Sealed[i].Data = data
			return
		}
	}
	e.Sealed = append(e.Sealed, Ciphertext{Field: field, Data: data})
}

func (e *Encrypted[T]) plainField(name string) (reflect.Value, error) {
	rv := reflect.ValueOf(&e.Value).Elem()
	sf, ok := rv.Type().FieldByName(name)
	if !ok || !sf.IsExported() {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	fv, err := rv.FieldByIndexErr(sf.Index)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s: %w", ErrUnknownField, name, err)
	}
	return fv, nil
}
