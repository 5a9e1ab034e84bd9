package cloak

import (
	"bytes"
	"fmt"
)

// Framing constants.
const (
	// magic is the 2-byte signature "CK" at the start of every sealed value.
	magic = "CK"

	// formatVersion is the current framing version.
	formatVersion = 0x01

	// minHeaderSize is magic(2) + version(1) + algLen(1) + keyIDLen(1).
	minHeaderSize = 5
)

// header describes a sealed value: which cipher sealed it under which key.
type header struct {
	algorithm Algorithm
	keyID     string
}

// encode writes the binary header.
func (h header) encode() ([]byte, error) {
	if len(h.algorithm) == 0 || len(h.algorithm) > 255 {
		return nil, fmt.Errorf("%w: algorithm name length %d", ErrInvalidCiphertext, len(h.algorithm))
	}
	if len(h.keyID) > 255 {
		return nil, fmt.Errorf("%w: key ID too long", ErrInvalidCiphertext)
	}

	var buf bytes.Buffer
	buf.Grow(minHeaderSize + len(h.algorithm) + len(h.keyID))
	buf.WriteString(magic)
	buf.WriteByte(formatVersion)
	buf.WriteByte(byte(len(h.algorithm)))
	buf.WriteString(string(h.algorithm))
	buf.WriteByte(byte(len(h.keyID)))
	buf.WriteString(h.keyID)
	return buf.Bytes(), nil
}

// readHeader parses the header from data, returning the header, the raw
// header bytes and the remaining cipher payload.
func readHeader(data []byte) (header, []byte, []byte, error) {
	if len(data) < minHeaderSize {
		return header{}, nil, nil, fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}
	if string(data[0:2]) != magic {
		return header{}, nil, nil, fmt.Errorf("%w: invalid magic bytes", ErrInvalidCiphertext)
	}
	if data[2] != formatVersion {
		return header{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCiphertext, data[2])
	}

	offset := 3
	algLen := int(data[offset])
	offset++
	if len(data) < offset+algLen+1 {
		return header{}, nil, nil, fmt.Errorf("%w: data too short for header", ErrInvalidCiphertext)
	}
	algo := Algorithm(data[offset : offset+algLen])
	offset += algLen

	keyIDLen := int(data[offset])
	offset++
	if len(data) < offset+keyIDLen {
		return header{}, nil, nil, fmt.Errorf("%w: data too short for header", ErrInvalidCiphertext)
	}
	keyID := string(data[offset : offset+keyIDLen])
	offset += keyIDLen

	return header{algorithm: algo, keyID: keyID}, data[:offset], data[offset:], nil
}

// additionalData binds a sealed value to its header and the field it belongs to.
func additionalData(rawHeader []byte, field string) []byte {
	aad := make([]byte, 0, len(rawHeader)+len(field))
	aad = append(aad, rawHeader...)
	return append(aad, field...)
}

// seal frames and encrypts plaintext for field under key.
func seal(c Cipher, key Key, field string, plaintext []byte) ([]byte, error) {
	raw, err := header{algorithm: c.Algorithm(), keyID: key.ID}.encode()
	if err != nil {
		return nil, err
	}
	payload, err := c.Seal(key, plaintext, additionalData(raw, field))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(raw)+len(payload))
	out = append(out, raw...)
	return append(out, payload...), nil
}

// open decrypts a framed value for field with key using c.
func open(c Cipher, key Key, field string, data []byte) ([]byte, error) {
	_, raw, payload, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	return c.Open(key, payload, additionalData(raw, field))
}
