package cloak

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
)

// Locked is returned in place of a marked field's value when no usable key
// is in scope. It carries the stored ciphertext, never plaintext.
type Locked struct {
	// Field is the marked field name.
	Field string

	// KeyID is the key the field requires.
	KeyID string

	// Data is the framed ciphertext, or nil if nothing has been stored.
	Data []byte
}

func (l Locked) String() string {
	return fmt.Sprintf("<locked %s key=%s>", l.Field, l.KeyID)
}

// IsLocked reports whether v is a Locked sentinel.
func IsLocked(v any) bool {
	switch v.(type) {
	case Locked, *Locked:
		return true
	}
	return false
}

// interceptor performs encrypt-on-write and decrypt-on-read for the marked
// fields of one tracked instance.
type interceptor struct {
	instanceID string
	entry      *TypeEntry
	global     *Keyring
	local      *Keyring
	write      Cipher
	ciphers    map[Algorithm]Cipher
}

func newInterceptor(id string, entry *TypeEntry, global, local *Keyring, o *options) *interceptor {
	write, ciphers := o.suite()
	return &interceptor{
		instanceID: id,
		entry:      entry,
		global:     global,
		local:      local,
		write:      write,
		ciphers:    ciphers,
	}
}

// scopes returns the keyrings in resolution order: Instance, Type, Global.
func (ic *interceptor) scopes() []*Keyring {
	return []*Keyring{ic.local, ic.entry.Keyring, ic.global}
}

// candidates returns every key c can use for keyID across all scopes.
func (ic *interceptor) candidates(c Cipher, keyID string) []Key {
	var out []Key
	for _, ring := range ic.scopes() {
		out = append(out, ring.Usable(c, keyID)...)
	}
	return out
}

// unified merges Global, Type and Instance into a read-only keyring.
func (ic *interceptor) unified() *Keyring {
	u := Merge(ic.global, ic.entry.Keyring, ic.local)
	u.MarkReadOnly()
	return u
}

// seal encrypts v for f with the preferred key and returns the encoded
// ciphertext.
func (ic *interceptor) seal(ctx context.Context, f *fieldPlan, v reflect.Value) (string, error) {
	typeName := ic.entry.plan.typeName

	keys := ic.candidates(ic.write, f.keyID)
	if len(keys) == 0 {
		err := newKeyError(ErrNoEncryptionKey, f.name, f.keyID)
		record(ctx, rejectCounter, typeName, f.name)
		emitFieldRejected(ctx, typeName, ic.instanceID, f.name, f.keyID, err)
		return "", err
	}

	plaintext, err := plaintextOf(f, v)
	if err != nil {
		return "", newTransformError(ErrEncrypt, "encrypt", f.name, err)
	}
	data, err := seal(ic.write, keys[0], f.name, plaintext)
	if err != nil {
		return "", newTransformError(ErrEncrypt, "encrypt", f.name, err)
	}

	record(ctx, encryptCounter, typeName, f.name)
	return base64.StdEncoding.EncodeToString(data), nil
}

// open decrypts stored for f. A nil *Locked with a nil error means the
// returned value is plaintext.
func (ic *interceptor) open(ctx context.Context, f *fieldPlan, stored string) (reflect.Value, *Locked, error) {
	typeName := ic.entry.plan.typeName

	if stored == "" {
		if len(ic.candidates(ic.write, f.keyID)) == 0 {
			return reflect.Value{}, ic.locked(ctx, f, nil), nil
		}
		return reflect.Zero(f.typ), nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return reflect.Value{}, nil, newTransformError(ErrInvalidCiphertext, "decrypt", f.name, err)
	}
	h, _, _, err := readHeader(data)
	if err != nil {
		return reflect.Value{}, nil, newTransformError(ErrInvalidCiphertext, "decrypt", f.name, err)
	}
	c, ok := ic.ciphers[h.algorithm]
	if !ok {
		return reflect.Value{}, nil, newTransformError(ErrUnknownAlgorithm, "decrypt", f.name,
			fmt.Errorf("no cipher for %q", h.algorithm))
	}

	keys := ic.candidates(c, f.keyID)
	if h.keyID != f.keyID {
		keys = append(keys, ic.candidates(c, h.keyID)...)
	}
	if len(keys) == 0 {
		return reflect.Value{}, ic.locked(ctx, f, data), nil
	}

	var lastErr error
	for _, key := range keys {
		plaintext, err := open(c, key, f.name, data)
		if err != nil {
			lastErr = err
			continue
		}
		v, err := valueOf(f, plaintext)
		if err != nil {
			return reflect.Value{}, nil, newTransformError(ErrDecrypt, "decrypt", f.name, err)
		}
		record(ctx, decryptCounter, typeName, f.name)
		return v, nil, nil
	}
	return reflect.Value{}, nil, newTransformError(ErrDecrypt, "decrypt", f.name, lastErr)
}

func (ic *interceptor) locked(ctx context.Context, f *fieldPlan, data []byte) *Locked {
	record(ctx, lockedCounter, ic.entry.plan.typeName, f.name)
	emitFieldLocked(ctx, ic.entry.plan.typeName, ic.instanceID, f.name, f.keyID)
	return &Locked{Field: f.name, KeyID: f.keyID, Data: data}
}
