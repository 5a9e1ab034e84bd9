package cloak

import (
	"context"
	"errors"
	"reflect"

	"github.com/google/uuid"
)

// generateTrackedInstance constructs a new linked Encrypted[T] with a fresh
// Instance keyring. Construction runs the Initializer hook with T marked as
// constructing, so a nested wrap of T from inside the hook fails instead of
// recursing.
func generateTrackedInstance[T any](ctx context.Context, o *options) (*Encrypted[T], error) {
	typ := reflect.TypeFor[T]()
	if constructing(ctx, typ) {
		return nil, newTypeError(ErrGenerationCycle, typ)
	}

	entry, err := generateType[T](ctx, o.registry)
	if err != nil {
		return nil, err
	}

	e := &Encrypted[T]{}
	if err := initialize(withConstructing(ctx, typ), &e.Value); err != nil {
		return nil, err
	}
	e.attach(entry, o)
	return e, nil
}

// attach links e to a new interceptor and an empty Instance keyring.
// The caller must hold e.mu or own e exclusively.
func (e *Encrypted[T]) attach(entry *TypeEntry, o *options) *instance {
	id := uuid.NewString()
	local := NewKeyring()
	e.link = &instance{
		id:          id,
		entry:       entry,
		registry:    o.registry,
		keyring:     local,
		interceptor: newInterceptor(id, entry, o.registry.Global(), local, o),
	}
	return e.link
}

// copyState shallow-copies src into e and seals its marked fields.
// src is not modified.
func (e *Encrypted[T]) copyState(ctx context.Context, src *T) error {
	e.Value = *src
	e.Sealed = nil
	return e.sealMarked(ctx)
}

// sealMarked moves any plaintext left in Value's marked fields into Sealed.
// A field with no usable key is cleared without being stored; it reads as
// Locked until written with a key in scope.
func (e *Encrypted[T]) sealMarked(ctx context.Context) error {
	rv := reflect.ValueOf(&e.Value).Elem()
	plan := e.link.entry.plan
	for i := range plan.marked {
		f := &plan.marked[i]
		fv := rv.FieldByIndex(f.index)
		if fv.IsZero() {
			continue
		}
		data, err := e.link.interceptor.seal(ctx, f, fv)
		fv.SetZero()
		switch {
		case err == nil:
			e.store(f.name, data)
		case errors.Is(err, ErrNoEncryptionKey):
		default:
			return err
		}
	}
	return nil
}

// storable returns the form of e to encode. Stray plaintext in marked fields
// is sealed when e is linked; the result never carries it either way.
// The caller must hold e.mu.
func (e *Encrypted[T]) storable(ctx context.Context, plan *typePlan) (*Encrypted[T], error) {
	if e.link != nil {
		if err := e.sealMarked(ctx); err != nil {
			return nil, err
		}
	}
	out := &Encrypted[T]{XMLName: e.XMLName, Value: e.Value, Sealed: e.Sealed}
	clearMarked(plan, &out.Value)
	return out, nil
}

// clearMarked zeroes the marked fields of v.
func clearMarked[T any](plan *typePlan, v *T) {
	rv := reflect.ValueOf(v).Elem()
	for i := range plan.marked {
		rv.FieldByIndex(plan.marked[i].index).SetZero()
	}
}
