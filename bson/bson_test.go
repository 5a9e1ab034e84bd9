package bson

import (
	"bytes"
	"context"
	"testing"

	"github.com/zoobzio/cloak"
)

func TestContentType(t *testing.T) {
	c := New()
	if c.ContentType() != "application/bson" {
		t.Errorf("ContentType() = %q, want %q", c.ContentType(), "application/bson")
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var v struct {
		Name string `bson:"name"`
	}
	if err := New().Unmarshal([]byte("{{not bson"), &v); err == nil {
		t.Error("Unmarshal(invalid) should return error")
	}
}

type record struct {
	Name string `json:"name" xml:"name" yaml:"name" msgpack:"name" bson:"name"`
	SSN  string `json:"ssn" xml:"ssn" yaml:"ssn" msgpack:"ssn" bson:"ssn" encrypt:"pii"`
}

func testKeyring(t *testing.T) *cloak.Keyring {
	t.Helper()
	key, err := cloak.GenerateKey("pii", 32)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return cloak.NewKeyring(key)
}

func TestEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New()
	keys := testKeyring(t)

	e, err := cloak.AsEncrypted(ctx, &record{Name: "A", SSN: "123-45-6789"}, keys)
	if err != nil {
		t.Fatalf("AsEncrypted() error: %v", err)
	}

	data, err := c.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if bytes.Contains(data, []byte("123-45-6789")) {
		t.Fatalf("Marshal() leaked plaintext: %q", data)
	}

	var restored cloak.Encrypted[record]
	if err := c.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if restored.Value.Name != "A" {
		t.Errorf("Name = %q, want %q", restored.Value.Name, "A")
	}
	if err := cloak.Relink(ctx, &restored, keys); err != nil {
		t.Fatalf("Relink() error: %v", err)
	}
	ssn, ok, err := cloak.Field[string](ctx, &restored, "SSN")
	if err != nil {
		t.Fatalf("Field() error: %v", err)
	}
	if !ok || ssn != "123-45-6789" {
		t.Errorf("SSN = %q (ok=%v), want %q", ssn, ok, "123-45-6789")
	}
}

func TestMarshalNil(t *testing.T) {
	data, err := New().Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil) error: %v", err)
	}
	// int32 length + terminating null
	if len(data) != 5 {
		t.Errorf("Marshal(nil) = %v, want empty document", data)
	}
}
