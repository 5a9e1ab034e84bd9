package cloak

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher errors.
var (
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher is the symmetric primitive used by the interceptor.
// Implementations are keyed by raw key material and must be safe for
// concurrent use.
type Cipher interface {
	// Algorithm names the cipher. It is recorded in every ciphertext header
	// so reads can select the cipher that wrote the value.
	Algorithm() Algorithm

	// Usable reports whether key can encrypt or decrypt values bound to keyID.
	Usable(key Key, keyID string) bool

	// Seal encrypts plaintext, authenticating aad.
	Seal(key Key, plaintext, aad []byte) ([]byte, error)

	// Open decrypts ciphertext produced by Seal with the same key and aad.
	Open(key Key, ciphertext, aad []byte) ([]byte, error)
}

func validAESKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// aesCipher implements AES-GCM encryption.
type aesCipher struct{}

// AESGCM returns an AES-GCM cipher.
// Keys must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
func AESGCM() Cipher {
	return aesCipher{}
}

func (aesCipher) Algorithm() Algorithm { return AlgorithmAESGCM }

func (aesCipher) Usable(key Key, keyID string) bool {
	return key.ID == keyID && validAESKeySize(len(key.Material))
}

func newGCM(material []byte) (cipher.AEAD, error) {
	if !validAESKeySize(len(material)) {
		return nil, fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKeySize, len(material))
	}
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (aesCipher) Seal(key Key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key.Material)
	if err != nil {
		return nil, err
	}
	return sealAEAD(gcm, plaintext, aad)
}

func (aesCipher) Open(key Key, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key.Material)
	if err != nil {
		return nil, err
	}
	return openAEAD(gcm, ciphertext, aad)
}

// sealAEAD prepends a random nonce to the sealed output.
func sealAEAD(aead cipher.AEAD, plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func openAEAD(aead cipher.AEAD, ciphertext, aad []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextShort
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// xchachaCipher implements XChaCha20-Poly1305 encryption.
type xchachaCipher struct{}

// XChaCha20Poly1305 returns an XChaCha20-Poly1305 cipher.
// Keys must be 32 bytes. The 24-byte nonce is safe to draw at random.
func XChaCha20Poly1305() Cipher {
	return xchachaCipher{}
}

func (xchachaCipher) Algorithm() Algorithm { return AlgorithmXChaCha20 }

func (xchachaCipher) Usable(key Key, keyID string) bool {
	return key.ID == keyID && len(key.Material) == chacha20poly1305.KeySize
}

func (xchachaCipher) Seal(key Key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, err)
	}
	return sealAEAD(aead, plaintext, aad)
}

func (xchachaCipher) Open(key Key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, err)
	}
	return openAEAD(aead, ciphertext, aad)
}

// envelopeCipher implements envelope encryption.
// A random data key is generated per operation, encrypted with the key
// material, and prepended to the ciphertext.
type envelopeCipher struct {
	dataKeySize int
}

// Envelope returns an envelope cipher. Key material acts as the master key
// and must be 16, 24, or 32 bytes; data keys are AES-256.
func Envelope() Cipher {
	return envelopeCipher{dataKeySize: 32}
}

func (envelopeCipher) Algorithm() Algorithm { return AlgorithmEnvelope }

func (envelopeCipher) Usable(key Key, keyID string) bool {
	return key.ID == keyID && validAESKeySize(len(key.Material))
}

func (e envelopeCipher) Seal(key Key, plaintext, aad []byte) ([]byte, error) {
	masterGCM, err := newGCM(key.Material)
	if err != nil {
		return nil, err
	}

	// Generate random data key
	dataKey := make([]byte, e.dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, err
	}
	defer clear(dataKey)

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	encryptedData, err := sealAEAD(dataGCM, plaintext, aad)
	if err != nil {
		return nil, err
	}

	encryptedKey, err := sealAEAD(masterGCM, dataKey, aad)
	if err != nil {
		return nil, err
	}

	// Format: [2 bytes key len][encrypted key][encrypted data]
	if len(encryptedKey) > 65535 {
		return nil, errors.New("encrypted key exceeds maximum length")
	}
	keyLen := uint16(len(encryptedKey)) // #nosec G115 -- bounds checked above
	result := make([]byte, 2+len(encryptedKey)+len(encryptedData))
	result[0] = byte(keyLen >> 8)
	result[1] = byte(keyLen)
	copy(result[2:], encryptedKey)
	copy(result[2+len(encryptedKey):], encryptedData)

	return result, nil
}

func (e envelopeCipher) Open(key Key, ciphertext, aad []byte) ([]byte, error) {
	masterGCM, err := newGCM(key.Material)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < 2 {
		return nil, ErrCiphertextShort
	}

	keyLen := int(uint16(ciphertext[0])<<8 | uint16(ciphertext[1]))
	if len(ciphertext) < 2+keyLen {
		return nil, ErrCiphertextShort
	}

	dataKey, err := openAEAD(masterGCM, ciphertext[2:2+keyLen], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}
	defer clear(dataKey)

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := openAEAD(dataGCM, ciphertext[2+keyLen:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	return plaintext, nil
}

// builtinCiphers returns the default cipher suite.
func builtinCiphers() map[Algorithm]Cipher {
	return map[Algorithm]Cipher{
		AlgorithmAESGCM:    AESGCM(),
		AlgorithmXChaCha20: XChaCha20Poly1305(),
		AlgorithmEnvelope:  Envelope(),
	}
}
