package cloak

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// GenerateKey returns a key with size bytes of random material.
// Size must be 16, 24, or 32.
func GenerateKey(id string, size int) (Key, error) {
	if size != 16 && size != 24 && size != 32 {
		return Key{}, fmt.Errorf("%w: size must be 16, 24, or 32 bytes, got %d", ErrInvalidKey, size)
	}
	material := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return Key{}, fmt.Errorf("failed to generate key material: %w", err)
	}
	key := Key{ID: id, Material: material}
	if err := key.validate(); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Argon2Params configures Argon2id key derivation.
type Argon2Params struct {
	Time    uint32 // Number of iterations
	Memory  uint32 // Memory usage in KiB
	Threads uint8  // Parallelism factor
	KeyLen  uint32 // Output key length
}

// DefaultArgon2Params returns recommended Argon2id parameters.
// Based on OWASP recommendations, producing AES-256 sized keys.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024, // 64 MiB
		Threads: 4,
		KeyLen:  32,
	}
}

// DeriveKey derives key material from a passphrase with Argon2id.
// The same passphrase, salt and params always produce the same key.
func DeriveKey(id string, passphrase, salt []byte, params Argon2Params) (Key, error) {
	if len(passphrase) == 0 {
		return Key{}, fmt.Errorf("%w: passphrase must not be empty", ErrInvalidKey)
	}
	if len(salt) < 8 {
		return Key{}, fmt.Errorf("%w: salt must be at least 8 bytes, got %d", ErrInvalidKey, len(salt))
	}
	material := argon2.IDKey(passphrase, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	key := Key{ID: id, Material: material}
	if err := key.validate(); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Fingerprint returns a short hex SHA-256 digest of the key material.
// Use it to identify a key in logs and events without exposing the material.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k.Material)
	return hex.EncodeToString(sum[:8])
}

// ParseKey parses the "id:base64material" form used by CLOAK_GLOBAL_KEYS.
func ParseKey(s string) (Key, error) {
	id, encoded, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Key{}, fmt.Errorf("%w: expected id:base64, got %q", ErrInvalidKey, s)
	}
	material, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Key{}, fmt.Errorf("%w: key %q: %w", ErrInvalidKey, id, err)
	}
	key := Key{ID: id, Material: material}
	if err := key.validate(); err != nil {
		return Key{}, err
	}
	return key, nil
}
