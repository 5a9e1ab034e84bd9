// Package bson provides a BSON codec for cloak processors.
//
// BSON documents must be structs or maps at the top level, which holds for
// Encrypted values and plain struct types.
package bson

import (
	"fmt"

	"github.com/zoobzio/cloak"
	"go.mongodb.org/mongo-driver/bson"
)

// bsonCodec implements cloak.Codec for BSON.
type bsonCodec struct{}

// New returns a BSON codec.
func New() cloak.Codec {
	return &bsonCodec{}
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as a BSON document. A nil v encodes as an empty document.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return bson.Marshal(bson.D{})
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bson: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a BSON document into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	if err := bson.Unmarshal(data, v); err != nil {
		return fmt.Errorf("bson: %w", err)
	}
	return nil
}
