package cloak

import "context"

// Override interfaces let plain types replace tag scanning and hook into
// construction. They are designed for codegen: a generator can emit these
// methods from a schema instead of relying on struct tags.

// Marker declares a type's encrypted fields without struct tags.
// When *T implements Marker, encrypt tags on T are ignored.
type Marker interface {
	// EncryptedFields maps field name to the ID of the key the field requires.
	// Called once, on a zero value, when the type is generated.
	EncryptedFields() map[string]string
}

// Initializer runs construction logic on the plain value inside a new
// Encrypted[T]. It is called on a prototype while the type is generated and
// on every instance the factory builds, before state is copied in.
//
// The context marks T as under construction: a Relink of T issued from
// InitEncrypted with this context is a no-op, and AsEncrypted of T fails
// with ErrGenerationCycle instead of recursing.
type Initializer interface {
	InitEncrypted(ctx context.Context) error
}
