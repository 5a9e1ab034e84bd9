// Package xml provides an XML codec for cloak processors.
package xml

import (
	"encoding/xml"

	"github.com/zoobzio/cloak"
)

// xmlCodec implements cloak.Codec for XML.
type xmlCodec struct {
	header bool
}

// Option configures an XML codec.
type Option func(*xmlCodec)

// WithHeader prefixes output with the standard XML declaration.
func WithHeader() Option {
	return func(c *xmlCodec) {
		c.header = true
	}
}

// New returns an XML codec. Encrypted values encode as an <encrypted>
// element holding <value> and <sealed> children.
func New(opts ...Option) cloak.Codec {
	c := &xmlCodec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentType returns the MIME type for XML.
func (c *xmlCodec) ContentType() string {
	return "application/xml"
}

// Marshal encodes v as XML.
func (c *xmlCodec) Marshal(v any) ([]byte, error) {
	data, err := xml.Marshal(v)
	if err != nil || !c.header {
		return data, err
	}
	return append([]byte(xml.Header), data...), nil
}

// Unmarshal decodes XML data into v.
func (c *xmlCodec) Unmarshal(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}
