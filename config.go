package cloak

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds process defaults, read from CLOAK_* environment variables.
type Config struct {
	// Cipher is the algorithm used for writes when no WithCipher option is given.
	Cipher Algorithm `env:"CIPHER" envDefault:"aes-gcm"`

	// GlobalKeys seeds the default registry's Global keyring.
	// Each entry has the form id:base64material.
	GlobalKeys []string `env:"GLOBAL_KEYS" envSeparator:","`
}

// LoadConfig parses Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CLOAK_"}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if !IsValidAlgorithm(cfg.Cipher) {
		return Config{}, fmt.Errorf("load config: %w: %q", ErrUnknownAlgorithm, cfg.Cipher)
	}
	return cfg, nil
}

// Keys parses GlobalKeys.
func (c Config) Keys() ([]Key, error) {
	keys := make([]Key, 0, len(c.GlobalKeys))
	for _, s := range c.GlobalKeys {
		key, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// LoadDefaults applies the environment to the default registry: it sets the
// default write cipher and adds any CLOAK_GLOBAL_KEYS to the Global keyring.
func LoadDefaults() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	return DefaultRegistry().Apply(cfg)
}

// options holds per-call configuration.
type options struct {
	registry *Registry
	cipher   Cipher
	ciphers  []Cipher
}

// Option configures a wrap, relink or processor call.
// Absent options fall back to the registry's process defaults.
type Option func(*options)

// WithRegistry scopes the call to r instead of the default registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithCipher selects the cipher used for writes. It is also added to the
// suite used for reads.
func WithCipher(c Cipher) Option {
	return func(o *options) {
		o.cipher = c
	}
}

// WithCiphers adds ciphers to the suite used for reads, for values written
// by algorithms outside the built-in set.
func WithCiphers(cs ...Cipher) Option {
	return func(o *options) {
		o.ciphers = append(o.ciphers, cs...)
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	return o
}

// suite resolves the write cipher and the read cipher suite for a call.
func (o *options) suite() (Cipher, map[Algorithm]Cipher) {
	ciphers := builtinCiphers()
	for _, c := range o.ciphers {
		ciphers[c.Algorithm()] = c
	}
	write := o.cipher
	if write == nil {
		write = o.registry.defaultCipher()
	}
	ciphers[write.Algorithm()] = write
	return write, ciphers
}
