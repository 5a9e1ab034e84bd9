package cloak

import (
	"context"
	"fmt"
	"reflect"
)

// relinkCase is the outcome of classifying an object for relink.
type relinkCase int

const (
	casePlain    relinkCase = iota // not encryption-capable
	caseUnlinked                   // encryption-capable, no interceptor
	caseLive                       // interceptor attached
	casePending                    // type under construction on this call chain; skipped
)

func (c relinkCase) String() string {
	switch c {
	case caseUnlinked:
		return "unlinked"
	case caseLive:
		return "live"
	case casePending:
		return "pending"
	default:
		return "plain"
	}
}

// tracked is implemented by every Encrypted[T].
type tracked interface {
	linked() *instance
	plainType() reflect.Type
	relink(ctx context.Context, keyring *Keyring, o *options) (relinkCase, *instance, error)
}

func (e *Encrypted[T]) linked() *instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link
}

func (e *Encrypted[T]) plainType() reflect.Type {
	return reflect.TypeFor[T]()
}

// relink imports keyring into e's Instance keyring, first attaching a new
// interceptor if e is unlinked.
func (e *Encrypted[T]) relink(ctx context.Context, keyring *Keyring, o *options) (relinkCase, *instance, error) {
	if constructing(ctx, e.plainType()) {
		return casePending, nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := caseLive
	if e.link == nil {
		entry, err := generateType[T](ctx, o.registry)
		if err != nil {
			return casePlain, nil, err
		}
		e.attach(entry, o)
		c = caseUnlinked
	}

	if err := importKeyring(ctx, e.link, keyring); err != nil {
		return c, e.link, err
	}
	if c == caseUnlinked {
		if err := e.sealMarked(ctx); err != nil {
			return c, e.link, err
		}
	}
	return c, e.link, nil
}

// classify sorts obj into the three relink cases.
func classify(obj any) relinkCase {
	t, ok := obj.(tracked)
	if !ok {
		return casePlain
	}
	if v := reflect.ValueOf(obj); v.Kind() == reflect.Pointer && v.IsNil() {
		return casePlain
	}
	if t.linked() != nil {
		return caseLive
	}
	return caseUnlinked
}

func importKeyring(ctx context.Context, inst *instance, keyring *Keyring) error {
	n := 0
	if keyring != nil {
		n = keyring.Len()
	}
	err := inst.keyring.Import(keyring)
	emitKeyringImported(ctx, inst.entry.plan.typeName, inst.id, n, err)
	return err
}

// AsEncrypted wraps a plain object in a new tracked instance. The keyring,
// if any, is imported into the new Instance keyring before obj's fields are
// copied and sealed. obj is left untouched.
//
// Marked fields that cannot be sealed for lack of a key are not stored: the
// wrap succeeds, the field reads as Locked, and LockedFields names it. A
// cloak.field.rejected event is emitted for each such field.
func AsEncrypted[T any](ctx context.Context, obj *T, keyring *Keyring, opts ...Option) (*Encrypted[T], error) {
	typ := reflect.TypeFor[T]()
	if obj == nil {
		return nil, fmt.Errorf("%w: nil %s", ErrInvalidValue, typ)
	}
	o := buildOptions(opts)

	ctx, span := startSpan(ctx, "cloak.AsEncrypted", typ.String())
	e, err := asEncrypted(ctx, obj, keyring, o)
	endSpan(span, err)

	var id string
	var algo Algorithm
	if e != nil && e.link != nil {
		id = e.link.id
		algo = e.link.interceptor.write.Algorithm()
	}
	emitInstanceWrapped(ctx, typ.String(), id, algo, err)
	if err != nil {
		return nil, err
	}
	record(ctx, wrapCounter, typ.String(), "")
	return e, nil
}

func asEncrypted[T any](ctx context.Context, obj *T, keyring *Keyring, o *options) (*Encrypted[T], error) {
	e, err := generateTrackedInstance[T](ctx, o)
	if err != nil {
		return nil, err
	}
	if err := importKeyring(ctx, e.link, keyring); err != nil {
		return e, err
	}
	if err := e.copyState(ctx, obj); err != nil {
		return e, err
	}
	return e, nil
}

// Relink attaches e to a live interceptor and imports keyring into its
// Instance keyring. A live e keeps its interceptor and identity; an unlinked
// e, such as one fresh from a codec, gets a new one. Relinking twice with
// different keyrings leaves the union of both in the Instance keyring.
//
// Relink does nothing when called from inside T's own construction.
func Relink[T any](ctx context.Context, e *Encrypted[T], keyring *Keyring, opts ...Option) error {
	if e == nil {
		return fmt.Errorf("%w: nil %s", ErrInvalidValue, reflect.TypeFor[Encrypted[T]]())
	}
	_, err := relinkTracked(ctx, e, keyring, buildOptions(opts))
	return err
}

// RelinkAny relinks obj if it is encryption-capable. It reports false, with
// no error, for plain objects.
func RelinkAny(ctx context.Context, obj any, keyring *Keyring, opts ...Option) (bool, error) {
	if classify(obj) == casePlain {
		return false, nil
	}
	_, err := relinkTracked(ctx, obj.(tracked), keyring, buildOptions(opts))
	return true, err
}

func relinkTracked(ctx context.Context, t tracked, keyring *Keyring, o *options) (relinkCase, error) {
	typeName := t.plainType().String()
	ctx, span := startSpan(ctx, "cloak.Relink", typeName)
	c, inst, err := t.relink(ctx, keyring, o)
	endSpan(span, err)
	if err != nil || inst == nil {
		return c, err
	}
	record(ctx, relinkCounter, typeName, "")
	emitInstanceRelinked(ctx, inst.entry.plan.typeName, inst.id, c)
	return c, nil
}

// Wrap is the non-generic form of AsEncrypted and Relink. An *Encrypted[T]
// is relinked and returned as is. A T or *T of a registered type is wrapped
// in a new *Encrypted[T]. Other values fail with ErrUnknownType.
func Wrap(ctx context.Context, obj any, keyring *Keyring, opts ...Option) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalidValue)
	}
	o := buildOptions(opts)

	if classify(obj) != casePlain {
		if _, err := relinkTracked(ctx, obj.(tracked), keyring, o); err != nil {
			return nil, err
		}
		return obj, nil
	}

	typ := reflect.TypeOf(obj)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	entry, ok := o.registry.TrackedTypeFor(typ)
	if !ok || entry.Original != typ {
		return nil, newTypeError(ErrUnknownType, typ)
	}
	return entry.wrap(ctx, obj, keyring, opts)
}

// wrapPlain adapts AsEncrypted for TypeEntry.
func wrapPlain[T any](ctx context.Context, obj any, keyring *Keyring, opts []Option) (any, error) {
	var src *T
	switch v := obj.(type) {
	case *T:
		src = v
	case T:
		src = &v
	default:
		return nil, fmt.Errorf("%w: %T is not %s", ErrInvalidValue, obj, reflect.TypeFor[T]())
	}
	e, err := AsEncrypted(ctx, src, keyring, opts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// LocalKeyring returns the Instance keyring of a tracked object.
// It fails with ErrInstanceNotTracked for plain or unlinked objects.
func LocalKeyring(obj any) (*Keyring, error) {
	if classify(obj) != caseLive {
		return nil, ErrInstanceNotTracked
	}
	return obj.(tracked).linked().keyring, nil
}
