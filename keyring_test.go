package cloak_test

import (
	"bytes"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/zoobzio/cloak"
	cloaktest "github.com/zoobzio/cloak/testing"
)

func TestNewKeyring_Dedup(t *testing.T) {
	first := cloak.NewKey("pii", bytes.Repeat([]byte{1}, 32))
	second := cloak.NewKey("pii", bytes.Repeat([]byte{2}, 32))

	ring := cloak.NewKeyring(first, second, cloak.Key{ID: "", Material: []byte{1}})
	if ring.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ring.Len())
	}
	got, ok := ring.Get("pii")
	if !ok {
		t.Fatal("Get(pii) not found")
	}
	if !bytes.Equal(got.Material, first.Material) {
		t.Error("first key added for an ID should win")
	}
}

func TestKeyring_MaterialIsCopied(t *testing.T) {
	material := bytes.Repeat([]byte{1}, 32)
	ring := cloak.NewKeyring(cloak.NewKey("pii", material))
	material[0] = 9

	got, _ := ring.Get("pii")
	if got.Material[0] != 1 {
		t.Error("keyring should not alias caller material")
	}
	got.Material[0] = 9
	again, _ := ring.Get("pii")
	if again.Material[0] != 1 {
		t.Error("Get() should return a copy")
	}
}

func TestKeyring_Add(t *testing.T) {
	ring := cloak.NewKeyring()
	if err := ring.Add(cloaktest.TestKey(t, "a"), cloaktest.TestKey(t, "b")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if got := ring.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v, want [a b]", got)
	}

	err := ring.Add(cloaktest.TestKey(t, "c"), cloak.Key{ID: "d"})
	if !errors.Is(err, cloak.ErrInvalidKey) {
		t.Errorf("Add() error = %v, want ErrInvalidKey", err)
	}
	if ring.Len() != 2 {
		t.Error("failed Add() should not add any key")
	}
}

func TestKeyring_ImportIdempotent(t *testing.T) {
	a := cloaktest.TestKeyring(t, "a")
	b := cloaktest.TestKeyring(t, "b", "c")

	if err := a.Import(b); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	once := a.IDs()

	if err := a.Import(b); err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if got := a.IDs(); !reflect.DeepEqual(got, once) {
		t.Errorf("second Import() changed key set: %v, want %v", got, once)
	}
	if !reflect.DeepEqual(once, []string{"a", "b", "c"}) {
		t.Errorf("IDs() = %v, want [a b c]", once)
	}
}

func TestKeyring_ImportSelfAndNil(t *testing.T) {
	a := cloaktest.TestKeyring(t, "a")
	if err := a.Import(a); err != nil {
		t.Fatalf("Import(self) error: %v", err)
	}
	if err := a.Import(nil); err != nil {
		t.Fatalf("Import(nil) error: %v", err)
	}
	if a.Len() != 1 {
		t.Errorf("Len() = %d, want 1", a.Len())
	}
}

func TestKeyring_ReadOnly(t *testing.T) {
	ring := cloaktest.TestKeyring(t, "a")
	ring.MarkReadOnly()
	ring.MarkReadOnly()

	if !ring.ReadOnly() {
		t.Fatal("ReadOnly() = false after MarkReadOnly()")
	}

	before := ring.IDs()
	checks := map[string]error{
		"Import":      ring.Import(cloaktest.TestKeyring(t, "b")),
		"Import(nil)": ring.Import(nil),
		"Add":         ring.Add(cloaktest.TestKey(t, "c")),
		"Remove":      ring.Remove("a"),
	}
	for name, err := range checks {
		if !cloak.IsReadOnly(err) {
			t.Errorf("%s() error = %v, want ErrReadOnly", name, err)
		}
	}
	if got := ring.IDs(); !reflect.DeepEqual(got, before) {
		t.Errorf("read-only keyring changed: %v, want %v", got, before)
	}
}

func TestKeyring_Remove(t *testing.T) {
	ring := cloaktest.TestKeyring(t, "a", "b", "c")
	if err := ring.Remove("b"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := ring.Remove("missing"); err != nil {
		t.Fatalf("Remove(missing) error: %v", err)
	}
	if got := ring.IDs(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("IDs() = %v, want [a c]", got)
	}
	if _, ok := ring.Get("c"); !ok {
		t.Error("Get(c) should still find the key after Remove(b)")
	}
}

func TestKeyring_Usable(t *testing.T) {
	ring := cloak.NewKeyring(
		cloak.NewKey("pii", make([]byte, 32)),
		cloak.NewKey("short", make([]byte, 5)),
	)

	if !ring.ContainsUsableKey(cloak.AESGCM(), "pii") {
		t.Error("ContainsUsableKey(pii) = false, want true")
	}
	if ring.ContainsUsableKey(cloak.AESGCM(), "short") {
		t.Error("ContainsUsableKey(short) = true, want false for invalid key size")
	}
	if ring.ContainsUsableKey(cloak.AESGCM(), "missing") {
		t.Error("ContainsUsableKey(missing) = true, want false")
	}
	if got := ring.Usable(cloak.AESGCM(), "pii"); len(got) != 1 {
		t.Errorf("Usable(pii) returned %d keys, want 1", len(got))
	}
}

func TestKeyring_Snapshot(t *testing.T) {
	ring := cloaktest.TestKeyring(t, "a")
	snap := ring.Snapshot()

	if !snap.ReadOnly() {
		t.Error("Snapshot() should be read-only")
	}
	if ring.ReadOnly() {
		t.Error("Snapshot() should not freeze the source")
	}
	if err := ring.Add(cloaktest.TestKey(t, "b")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if snap.Len() != 1 {
		t.Error("Snapshot() should not track later changes")
	}
}

func TestMerge_Order(t *testing.T) {
	merged := cloak.Merge(
		cloaktest.TestKeyring(t, "g"),
		nil,
		cloaktest.TestKeyring(t, "t", "g"),
		cloaktest.TestKeyring(t, "i"),
	)
	if got := merged.IDs(); !reflect.DeepEqual(got, []string{"g", "t", "i"}) {
		t.Errorf("IDs() = %v, want [g t i]", got)
	}
}

func TestKeyring_ConcurrentImport(t *testing.T) {
	a := cloaktest.TestKeyring(t, "a")
	b := cloaktest.TestKeyring(t, "b")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Import(b)
		}()
		go func() {
			defer wg.Done()
			_ = b.Import(a)
		}()
	}
	wg.Wait()

	if a.Len() != 2 || b.Len() != 2 {
		t.Errorf("Len() = %d, %d, want 2, 2", a.Len(), b.Len())
	}
}
