package cloak

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Processor moves tracked instances of T across serialization boundaries.
//
//   - Receive: plain T from an external source, wrapped in a new instance
//   - Load: Encrypted[T] from storage, relinked
//   - Store: Encrypted[T] to storage, ciphertext only
//   - Send: the decrypted view of T to an external destination
//
// Processors are safe for concurrent use.
type Processor[T any] struct {
	codec    Codec
	opts     []Option
	entry    *TypeEntry
	typeName string
}

type processorKey struct {
	typ         reflect.Type
	contentType string
}

// NewProcessor creates a Processor for T, generating T's encrypted form if
// needed. opts apply to every wrap and relink the processor performs.
func NewProcessor[T any](codec Codec, opts ...Option) (*Processor[T], error) {
	ctx := context.Background()
	entry, err := Generate[T](ctx, opts...)
	if err != nil {
		return nil, err
	}

	p := &Processor[T]{
		codec:    codec,
		opts:     opts,
		entry:    entry,
		typeName: entry.TypeName(),
	}

	emitProcessorCreated(ctx, codec.ContentType(), p.typeName)
	return p, nil
}

// Use returns a cached Processor for T and codec's content type, creating
// one on first use. opts only apply when the processor is created.
func Use[T any](codec Codec, opts ...Option) (*Processor[T], error) {
	r := buildOptions(opts).registry
	key := processorKey{typ: reflect.TypeFor[T](), contentType: codec.ContentType()}

	r.mu.RLock()
	cached, ok := r.processors[key]
	r.mu.RUnlock()
	if ok {
		return cached.(*Processor[T]), nil
	}

	p, err := NewProcessor[T](codec, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.processors[key]; ok {
		return cached.(*Processor[T]), nil
	}
	r.processors[key] = p
	return p, nil
}

// Entry returns the type entry the processor works with.
func (p *Processor[T]) Entry() *TypeEntry {
	return p.entry
}

// Receive decodes a plain T and wraps it, importing keyring into the new
// Instance keyring.
func (p *Processor[T]) Receive(ctx context.Context, data []byte, keyring *Keyring) (*Encrypted[T], error) {
	start := time.Now()

	var retErr error
	defer func() {
		emitReceiveComplete(ctx, p.codec.ContentType(), p.typeName, len(data), time.Since(start), retErr)
	}()

	var obj T
	if err := p.codec.Unmarshal(data, &obj); err != nil {
		retErr = newCodecError(ErrUnmarshal, err)
		return nil, retErr
	}

	e, err := AsEncrypted(ctx, &obj, keyring, p.opts...)
	if err != nil {
		retErr = fmt.Errorf("wrap: %w", err)
		return nil, retErr
	}
	return e, nil
}

// Load decodes a stored Encrypted[T] and relinks it with keyring.
func (p *Processor[T]) Load(ctx context.Context, data []byte, keyring *Keyring) (*Encrypted[T], error) {
	start := time.Now()

	var retErr error
	defer func() {
		emitLoadComplete(ctx, p.codec.ContentType(), p.typeName, len(data), time.Since(start), retErr)
	}()

	e := &Encrypted[T]{}
	if err := p.codec.Unmarshal(data, e); err != nil {
		retErr = newCodecError(ErrUnmarshal, err)
		return nil, retErr
	}

	if err := Relink(ctx, e, keyring, p.opts...); err != nil {
		retErr = fmt.Errorf("relink: %w", err)
		return nil, retErr
	}
	return e, nil
}

// Store encodes e in its encrypted form. Marked fields appear only as
// ciphertext: plaintext assigned to a marked field of e.Value is sealed
// first on a linked e, and left out of the output on an unlinked one.
func (p *Processor[T]) Store(ctx context.Context, e *Encrypted[T]) ([]byte, error) {
	start := time.Now()

	var retErr error
	var retData []byte
	defer func() {
		emitStoreComplete(ctx, p.codec.ContentType(), p.typeName, len(retData), time.Since(start), retErr)
	}()

	if e == nil {
		retData, retErr = p.codec.Marshal(nil)
		return retData, retErr
	}

	e.mu.Lock()
	out, err := e.storable(ctx, p.entry.plan)
	if err != nil {
		e.mu.Unlock()
		retErr = fmt.Errorf("seal: %w", err)
		return nil, retErr
	}
	data, err := p.codec.Marshal(out)
	e.mu.Unlock()
	if err != nil {
		retErr = newCodecError(ErrMarshal, err)
		return nil, retErr
	}
	retData = data
	return retData, nil
}

// Send encodes the decrypted view of e. Fields with no usable key are sent
// as zero values.
func (p *Processor[T]) Send(ctx context.Context, e *Encrypted[T]) ([]byte, error) {
	start := time.Now()

	var retErr error
	var retData []byte
	defer func() {
		emitSendComplete(ctx, p.codec.ContentType(), p.typeName, len(retData), time.Since(start), retErr)
	}()

	if e == nil {
		retData, retErr = p.codec.Marshal(nil)
		return retData, retErr
	}

	plain, _, err := e.Open(ctx)
	if err != nil {
		retErr = fmt.Errorf("open: %w", err)
		return nil, retErr
	}

	data, err := p.codec.Marshal(&plain)
	if err != nil {
		retErr = newCodecError(ErrMarshal, err)
		return nil, retErr
	}
	retData = data
	return retData, nil
}
