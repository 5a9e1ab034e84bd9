// Package yaml provides a YAML codec for cloak processors.
package yaml

import (
	"bytes"

	"github.com/zoobzio/cloak"
	"gopkg.in/yaml.v3"
)

// yamlCodec implements cloak.Codec for YAML.
type yamlCodec struct {
	indent int
	strict bool
}

// Option configures a YAML codec.
type Option func(*yamlCodec)

// Indent sets the number of spaces per nesting level. The default is 4.
func Indent(spaces int) Option {
	return func(c *yamlCodec) {
		c.indent = spaces
	}
}

// Strict rejects documents with fields the target type does not declare.
func Strict() Option {
	return func(c *yamlCodec) {
		c.strict = true
	}
}

// New returns a YAML codec.
func New(opts ...Option) cloak.Codec {
	c := &yamlCodec{indent: 4}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentType returns the MIME type for YAML.
func (c *yamlCodec) ContentType() string {
	return "application/yaml"
}

// Marshal encodes v as YAML.
func (c *yamlCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(c.indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes YAML data into v.
func (c *yamlCodec) Unmarshal(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(c.strict)
	return dec.Decode(v)
}
