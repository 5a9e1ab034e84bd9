package cloak

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// TypeEntry maps a plain type to its encryption-capable form.
// Entries are created once per type and never change afterwards.
type TypeEntry struct {
	// Original is the plain type T.
	Original reflect.Type

	// Generated is Encrypted[T].
	Generated reflect.Type

	// Keyring is the Type keyring shared by every instance of Generated.
	Keyring *Keyring

	plan *typePlan
	wrap func(ctx context.Context, obj any, keyring *Keyring, opts []Option) (any, error)
}

// Fields returns the names of the encrypted fields, in declaration order.
func (e *TypeEntry) Fields() []string {
	out := make([]string, len(e.plan.marked))
	for i, f := range e.plan.marked {
		out[i] = f.name
	}
	return out
}

// KeyIDs returns the distinct key identifiers the type's fields require.
func (e *TypeEntry) KeyIDs() []string {
	return e.plan.keyIDs()
}

// TypeName returns the plain type's name.
func (e *TypeEntry) TypeName() string {
	return e.plan.typeName
}

// generation is an in-flight type generation. done closes once entry or
// err is final.
type generation struct {
	done  chan struct{}
	entry *TypeEntry
	err   error
}

// Registry tracks generated types and owns the Global keyring.
// The mapping between plain and generated types is a bijection and is
// cached for the registry's lifetime.
//
// Registries are safe for concurrent use. Lookups share a read lock;
// generation of a type is serialized per type and committed under the
// write lock.
type Registry struct {
	global *Keyring

	mu          sync.RWMutex
	byOriginal  map[reflect.Type]*TypeEntry
	byGenerated map[reflect.Type]*TypeEntry
	pending     map[reflect.Type]*generation
	cipher      Cipher
	processors  map[processorKey]any
}

// NewRegistry returns an empty registry with an empty Global keyring.
func NewRegistry() *Registry {
	return &Registry{
		global:      NewKeyring(),
		byOriginal:  make(map[reflect.Type]*TypeEntry),
		byGenerated: make(map[reflect.Type]*TypeEntry),
		pending:     make(map[reflect.Type]*generation),
		processors:  make(map[processorKey]any),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when no
// WithRegistry option is given.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Global returns the registry's Global keyring.
func (r *Registry) Global() *Keyring {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// GlobalKeyring returns the default registry's Global keyring.
func GlobalKeyring() *Keyring {
	return DefaultRegistry().Global()
}

// SetCipher sets the write cipher used when a call passes no WithCipher.
func (r *Registry) SetCipher(c Cipher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cipher = c
}

func (r *Registry) defaultCipher() Cipher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cipher == nil {
		return AESGCM()
	}
	return r.cipher
}

// Apply installs cfg as the registry's defaults.
func (r *Registry) Apply(cfg Config) error {
	c, ok := CipherFor(cfg.Cipher)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Cipher)
	}
	keys, err := cfg.Keys()
	if err != nil {
		return err
	}
	if err := r.Global().Add(keys...); err != nil {
		return err
	}
	r.SetCipher(c)
	return nil
}

// TrackedTypeFor looks up an entry by either its plain or generated type.
// It reports false if the type was never generated.
func (r *Registry) TrackedTypeFor(t reflect.Type) (*TypeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byOriginal[t]; ok {
		return e, true
	}
	e, ok := r.byGenerated[t]
	return e, ok
}

// EncryptedType returns the generated type for plain type t, or nil.
func (r *Registry) EncryptedType(t reflect.Type) reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byOriginal[t]; ok {
		return e.Generated
	}
	return nil
}

// PlainType returns the plain type for generated type t, or nil.
func (r *Registry) PlainType(t reflect.Type) reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byGenerated[t]; ok {
		return e.Original
	}
	return nil
}

// EncryptableTypes returns every plain type known to carry encrypted
// fields, sorted by name.
func (r *Registry) EncryptableTypes() []reflect.Type {
	r.mu.RLock()
	out := make([]reflect.Type, 0, len(r.byOriginal))
	for t := range r.byOriginal {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].PkgPath()+"."+out[i].String() < out[j].PkgPath()+"."+out[j].String()
	})
	return out
}

// EncryptableTypes returns the encryptable types known to the default registry.
func EncryptableTypes() []reflect.Type {
	return DefaultRegistry().EncryptableTypes()
}

// Pending reports whether t is being generated right now.
func (r *Registry) Pending(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[t]
	return ok
}

// Reset clears generated types, cached processors and the Global keyring.
// This is primarily useful for test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = NewKeyring()
	r.byOriginal = make(map[reflect.Type]*TypeEntry)
	r.byGenerated = make(map[reflect.Type]*TypeEntry)
	r.processors = make(map[processorKey]any)
	r.cipher = nil
}

// Reset clears the default registry.
func Reset() {
	DefaultRegistry().Reset()
}

// Register generates the encrypted form of T ahead of use. Registered types
// can be wrapped through the non-generic Wrap.
func Register[T any](opts ...Option) error {
	_, err := Generate[T](context.Background(), opts...)
	return err
}

// Generate returns the entry for T, generating it on first use.
//
// Generation scans T's encrypted fields, creates the Type keyring and
// constructs a prototype (running Initializer, if implemented) while T is
// marked pending. Once committed, later calls are plain lookups. A call
// made from inside T's own generation fails with ErrGenerationCycle; a
// concurrent call from elsewhere waits for the in-flight generation.
func Generate[T any](ctx context.Context, opts ...Option) (*TypeEntry, error) {
	o := buildOptions(opts)
	return generateType[T](ctx, o.registry)
}

func generateType[T any](ctx context.Context, r *Registry) (*TypeEntry, error) {
	typ := reflect.TypeFor[T]()

	r.mu.RLock()
	entry, ok := r.byOriginal[typ]
	r.mu.RUnlock()
	if ok {
		return entry, nil
	}

	if constructing(ctx, typ) {
		return nil, newTypeError(ErrGenerationCycle, typ)
	}

	r.mu.Lock()
	if entry, ok := r.byOriginal[typ]; ok {
		r.mu.Unlock()
		return entry, nil
	}
	if g, ok := r.pending[typ]; ok {
		r.mu.Unlock()
		<-g.done
		return g.entry, g.err
	}
	g := &generation{
		done: make(chan struct{}),
		err:  fmt.Errorf("generation of %s aborted", typ),
	}
	r.pending[typ] = g
	r.mu.Unlock()

	ctx, span := startSpan(ctx, "cloak.Generate", typ.String())
	start := time.Now()

	// Release the pending marker even if construction panics.
	defer func() {
		r.mu.Lock()
		delete(r.pending, typ)
		if g.err == nil && g.entry != nil {
			r.byOriginal[typ] = g.entry
			r.byGenerated[g.entry.Generated] = g.entry
		}
		r.mu.Unlock()
		close(g.done)
		endSpan(span, g.err)
		if g.err == nil && g.entry != nil {
			record(ctx, generateCounter, g.entry.plan.typeName, "")
			emitTypeGenerated(ctx, g.entry.plan.typeName, len(g.entry.plan.marked), time.Since(start))
		}
	}()

	g.entry, g.err = buildEntry[T](withConstructing(ctx, typ))
	return g.entry, g.err
}

// buildEntry scans T and constructs a prototype Encrypted[T].
func buildEntry[T any](ctx context.Context) (*TypeEntry, error) {
	plan, err := buildTypePlan[T]()
	if err != nil {
		return nil, err
	}

	proto := &Encrypted[T]{}
	if err := initialize(ctx, &proto.Value); err != nil {
		return nil, err
	}

	return &TypeEntry{
		Original:  plan.typ,
		Generated: reflect.TypeOf(proto).Elem(),
		Keyring:   NewKeyring(),
		plan:      plan,
		wrap:      wrapPlain[T],
	}, nil
}

// initialize runs the Initializer hook on v, if implemented.
func initialize[T any](ctx context.Context, v *T) error {
	in, ok := any(v).(Initializer)
	if !ok {
		return nil
	}
	if err := in.InitEncrypted(ctx); err != nil {
		return fmt.Errorf("initialize %s: %w", reflect.TypeFor[T](), err)
	}
	return nil
}

// constructingKey carries the types under construction on a call chain.
type constructingKey struct{}

type constructingSet struct {
	typ    reflect.Type
	parent *constructingSet
}

func withConstructing(ctx context.Context, typ reflect.Type) context.Context {
	parent, _ := ctx.Value(constructingKey{}).(*constructingSet)
	return context.WithValue(ctx, constructingKey{}, &constructingSet{typ: typ, parent: parent})
}

// constructing reports whether typ is being generated or constructed
// further up this call chain.
func constructing(ctx context.Context, typ reflect.Type) bool {
	set, _ := ctx.Value(constructingKey{}).(*constructingSet)
	for ; set != nil; set = set.parent {
		if set.typ == typ {
			return true
		}
	}
	return false
}
