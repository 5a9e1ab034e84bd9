// Package cloak provides transparent field-level encryption for Go structs.
//
// Fields marked with an encrypt tag are only ever stored, serialized and
// transmitted as ciphertext. Reading a marked field decrypts it if, and only
// if, a usable key is in scope; otherwise the read returns a Locked value
// instead of failing, so objects can move through code that cannot read
// them.
//
// # Tag Syntax
//
// The tag value names the key the field requires:
//
//	type Patient struct {
//	    Name string `json:"name"`
//	    SSN  string `json:"ssn" encrypt:"pii"`
//	}
//
// Types can declare marked fields without tags by implementing Marker.
//
// # Keyrings
//
// Keys are resolved from three scopes:
//
//   - Global: one per Registry, shared by everything
//   - Type: one per encrypted type, shared by its instances
//   - Instance: private to one tracked instance
//
// Reads try every usable key, Instance first. Writes use the first usable
// key in the same order. A write with no usable key fails with
// ErrNoEncryptionKey.
//
// # Basic Usage
//
//	key, _ := cloak.GenerateKey("pii", 32)
//
//	p, _ := cloak.AsEncrypted(ctx, &Patient{Name: "A", SSN: "123"}, cloak.NewKeyring(key))
//
//	p.Value.Name                     // "A", unmarked fields pass through
//	ssn, _ := p.Get(ctx, "SSN")      // "123", decrypted with key
//	_ = p.Set(ctx, "SSN", "456")     // sealed with key
//
// # Relink
//
// An Encrypted value decoded from storage has its ciphertext but no
// interceptor. Relink attaches one and imports a keyring; relinking a live
// instance only imports the keyring:
//
//	var p cloak.Encrypted[Patient]
//	_ = json.Unmarshal(data, &p)
//	_ = cloak.Relink(ctx, &p, keyring)
//
// Wrap accepts any value: Encrypted values are relinked, plain values of a
// type registered with Register are wrapped.
//
// # Codec Providers
//
// The following codec implementations are available as subpackages, for
// use with Processor:
//
//   - json - JSON encoding (application/json)
//   - xml - XML encoding (application/xml)
//   - yaml - YAML encoding (application/yaml)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - bson - BSON encoding (application/bson)
//
// # Ciphers
//
// Built-in ciphers:
//
//   - AESGCM() - AES-GCM with 16, 24 or 32 byte keys
//   - XChaCha20Poly1305() - XChaCha20-Poly1305 with 32 byte keys
//   - Envelope() - per-value data keys sealed under the field key
//
// Every ciphertext records the algorithm and key ID that produced it, and
// is bound to its field name.
package cloak
