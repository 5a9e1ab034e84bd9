// Package json provides a JSON codec for cloak processors.
package json

import (
	"bytes"
	"encoding/json"

	"github.com/zoobzio/cloak"
)

// jsonCodec implements cloak.Codec for JSON.
type jsonCodec struct {
	strict bool
	indent string
}

// Option configures a JSON codec.
type Option func(*jsonCodec)

// Strict rejects documents with fields the target type does not declare.
// Use it for Load so tampered envelopes fail instead of being ignored.
func Strict() Option {
	return func(c *jsonCodec) {
		c.strict = true
	}
}

// Indent pretty-prints output with the given indent string.
func Indent(indent string) Option {
	return func(c *jsonCodec) {
		c.indent = indent
	}
}

// New returns a JSON codec.
func New(opts ...Option) cloak.Codec {
	c := &jsonCodec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentType returns the MIME type for JSON.
func (c *jsonCodec) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (c *jsonCodec) Marshal(v any) ([]byte, error) {
	if c.indent != "" {
		return json.MarshalIndent(v, "", c.indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (c *jsonCodec) Unmarshal(data []byte, v any) error {
	if !c.strict {
		return json.Unmarshal(data, v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
