// Package testing provides test utilities for cloak.
package testing

import (
	"crypto/sha256"
	"testing"

	"github.com/zoobzio/cloak"
)

// TestKey returns a deterministic 32-byte key with the given ID.
// The material is derived from the ID, so two calls with the same ID
// return interchangeable keys.
func TestKey(tb testing.TB, id string) cloak.Key {
	tb.Helper()
	sum := sha256.Sum256([]byte("cloak-test-key/" + id))
	return cloak.NewKey(id, sum[:])
}

// TestKeyring returns a keyring holding TestKey for each ID.
func TestKeyring(tb testing.TB, ids ...string) *cloak.Keyring {
	tb.Helper()
	ring := cloak.NewKeyring()
	for _, id := range ids {
		if err := ring.Add(TestKey(tb, id)); err != nil {
			tb.Fatalf("Add(%q) error: %v", id, err)
		}
	}
	return ring
}

// TestRegistry returns an isolated registry, so tests do not share the
// default Global keyring or type cache.
func TestRegistry(tb testing.TB) *cloak.Registry {
	tb.Helper()
	r := cloak.NewRegistry()
	tb.Cleanup(r.Reset)
	return r
}

// Patient is a test type with one PII and one PHI field.
type Patient struct {
	ID        int     `json:"id" xml:"id" yaml:"id" msgpack:"id" bson:"id"`
	Name      string  `json:"name" xml:"name" yaml:"name" msgpack:"name" bson:"name"`
	SSN       string  `json:"ssn" xml:"ssn" yaml:"ssn" msgpack:"ssn" bson:"ssn" encrypt:"pii"`
	Diagnosis string  `json:"diagnosis" xml:"diagnosis" yaml:"diagnosis" msgpack:"diagnosis" bson:"diagnosis" encrypt:"phi"`
	Visits    []Visit `json:"visits" xml:"visits>visit" yaml:"visits" msgpack:"visits" bson:"visits"`
}

// Visit is a nested, unencrypted record.
type Visit struct {
	Clinic string `json:"clinic" xml:"clinic" yaml:"clinic" msgpack:"clinic" bson:"clinic"`
	Room   int    `json:"room" xml:"room" yaml:"room" msgpack:"room" bson:"room"`
}

// NewPatient returns a fully populated Patient.
func NewPatient() *Patient {
	return &Patient{
		ID:        7,
		Name:      "Ada",
		SSN:       "123-45-6789",
		Diagnosis: "seasonal allergies",
		Visits:    []Visit{{Clinic: "north", Room: 3}},
	}
}

// Plain is a test type with no encrypted fields.
type Plain struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
