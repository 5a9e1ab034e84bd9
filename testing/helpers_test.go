package testing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/zoobzio/cloak"
)

func TestTestKey(t *testing.T) {
	a := TestKey(t, "pii")
	b := TestKey(t, "pii")
	if len(a.Material) != 32 {
		t.Errorf("TestKey() length = %d, want 32", len(a.Material))
	}
	if !bytes.Equal(a.Material, b.Material) {
		t.Error("TestKey() should be deterministic per ID")
	}
	if bytes.Equal(a.Material, TestKey(t, "phi").Material) {
		t.Error("TestKey() should differ across IDs")
	}
}

func TestTestKeyring(t *testing.T) {
	ring := TestKeyring(t, "pii", "phi")
	if ring.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ring.Len())
	}
	if !ring.ContainsUsableKey(cloak.AESGCM(), "pii") {
		t.Error("ContainsUsableKey(pii) = false, want true")
	}
}

func TestPatient_Wraps(t *testing.T) {
	ctx := context.Background()
	r := TestRegistry(t)

	p, err := cloak.AsEncrypted(ctx, NewPatient(), TestKeyring(t, "pii", "phi"), cloak.WithRegistry(r))
	if err != nil {
		t.Fatalf("AsEncrypted() error: %v", err)
	}
	if got := len(p.Sealed); got != 2 {
		t.Errorf("len(Sealed) = %d, want 2", got)
	}
}

func TestPlain_NotEncryptable(t *testing.T) {
	_, err := cloak.AsEncrypted(context.Background(), &Plain{ID: "1"}, nil, cloak.WithRegistry(TestRegistry(t)))
	if !errors.Is(err, cloak.ErrTypeNotEncryptable) {
		t.Errorf("AsEncrypted() error = %v, want ErrTypeNotEncryptable", err)
	}
}
