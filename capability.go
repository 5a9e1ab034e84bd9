package cloak

// Algorithm names a cipher. Use these constants with CLOAK_CIPHER or
// CipherFor.
type Algorithm string

const (
	// AlgorithmAESGCM uses AES-GCM symmetric encryption.
	AlgorithmAESGCM Algorithm = "aes-gcm"

	// AlgorithmXChaCha20 uses XChaCha20-Poly1305 symmetric encryption.
	AlgorithmXChaCha20 Algorithm = "xchacha20-poly1305"

	// AlgorithmEnvelope uses envelope encryption with per-value data keys.
	AlgorithmEnvelope Algorithm = "envelope"
)

// validAlgorithms contains all built-in algorithms.
var validAlgorithms = map[Algorithm]bool{
	AlgorithmAESGCM:    true,
	AlgorithmXChaCha20: true,
	AlgorithmEnvelope:  true,
}

// IsValidAlgorithm returns true if the algorithm is a known built-in cipher.
func IsValidAlgorithm(algo Algorithm) bool {
	return validAlgorithms[algo]
}

// CipherFor returns the built-in cipher for algo.
func CipherFor(algo Algorithm) (Cipher, bool) {
	c, ok := builtinCiphers()[algo]
	return c, ok
}
