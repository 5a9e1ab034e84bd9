package cloak

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrReadOnly indicates a mutation was attempted on a frozen keyring.
	ErrReadOnly = errors.New("keyring is read-only")

	// ErrTypeNotEncryptable indicates a wrap was requested for a type with no marked fields.
	ErrTypeNotEncryptable = errors.New("type has no encrypted fields")

	// ErrNoEncryptionKey indicates a marked field was written with no usable key in scope.
	ErrNoEncryptionKey = errors.New("no encryption key available")

	// ErrInstanceNotTracked indicates an instance-scoped operation on an object that was never wrapped.
	ErrInstanceNotTracked = errors.New("instance is not tracked")

	// ErrGenerationCycle indicates a type was re-entered while its own generation was in flight.
	ErrGenerationCycle = errors.New("generation cycle")

	// ErrInvalidKey indicates a key has an empty identifier or invalid material.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidTag indicates an encrypt tag has an invalid format or value.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrUnknownField indicates an accessor named a field the type does not have.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidValue indicates a value is not assignable to the target field.
	ErrInvalidValue = errors.New("invalid value")

	// ErrEncrypt indicates encryption of a field failed.
	ErrEncrypt = errors.New("encrypt failed")

	// ErrDecrypt indicates decryption of a field failed with every usable key.
	ErrDecrypt = errors.New("decrypt failed")

	// ErrInvalidCiphertext indicates stored ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrUnknownType indicates a non-generic wrap of a type that was never registered.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownAlgorithm indicates ciphertext names an algorithm with no registered cipher.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrUnmarshal indicates the codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates the codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")
)

// TypeError represents a failure tied to a whole type rather than a field.
type TypeError struct {
	Err  error        // Underlying sentinel error (ErrTypeNotEncryptable, ErrGenerationCycle, ...)
	Type reflect.Type // Type that triggered the error
}

func (e *TypeError) Error() string {
	if e.Type == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Type)
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// KeyResolutionError represents a key resolution failure for a marked field.
type KeyResolutionError struct {
	Err   error  // Underlying sentinel error (ErrNoEncryptionKey, ErrInvalidKey)
	Field string // Field being written
	KeyID string // Key identifier the field requires
}

func (e *KeyResolutionError) Error() string {
	if e.Field != "" && e.KeyID != "" {
		return fmt.Sprintf("%s for key %q (field %s)", e.Err.Error(), e.KeyID, e.Field)
	}
	if e.KeyID != "" {
		return fmt.Sprintf("%s for key %q", e.Err.Error(), e.KeyID)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s)", e.Err.Error(), e.Field)
	}
	return e.Err.Error()
}

func (e *KeyResolutionError) Unwrap() error {
	return e.Err
}

// TransformError represents an error during field transformation.
// It wraps a sentinel error with context about which field and operation failed.
type TransformError struct {
	Err       error  // Underlying sentinel error (ErrEncrypt, ErrDecrypt, etc.)
	Field     string // Field name that failed
	Operation string // Operation that failed (encrypt, decrypt, get, set)
	Cause     error  // Original error from the underlying operation
}

func (e *TransformError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s field %s: %v", e.Operation, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s field %s", e.Operation, e.Field)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// CodecError represents a marshal/unmarshal error.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrUnmarshal)
	Cause error // Original error from the codec
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// IsReadOnly returns true if the error is or wraps ErrReadOnly.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}

// IsNoEncryptionKey returns true if the error is or wraps ErrNoEncryptionKey.
func IsNoEncryptionKey(err error) bool {
	return errors.Is(err, ErrNoEncryptionKey)
}

// IsInstanceNotTracked returns true if the error is or wraps ErrInstanceNotTracked.
func IsInstanceNotTracked(err error) bool {
	return errors.Is(err, ErrInstanceNotTracked)
}

func newTypeError(sentinel error, typ reflect.Type) error {
	return &TypeError{Err: sentinel, Type: typ}
}

func newKeyError(sentinel error, field, keyID string) error {
	return &KeyResolutionError{Err: sentinel, Field: field, KeyID: keyID}
}

func newTransformError(sentinel error, operation, field string, cause error) error {
	return &TransformError{
		Err:       sentinel,
		Field:     field,
		Operation: operation,
		Cause:     cause,
	}
}

func newCodecError(sentinel error, cause error) error {
	return &CodecError{
		Err:   sentinel,
		Cause: cause,
	}
}
