package cloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// testCodec is a minimal JSON codec for processor tests.
type testCodec struct{}

func (testCodec) ContentType() string { return "application/json" }

func (testCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (testCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type procUser struct {
	Name  string `json:"name"`
	Email string `json:"email" encrypt:"pii"`
}

func procKeyring(t *testing.T) *Keyring {
	t.Helper()
	key, err := GenerateKey("pii", 32)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return NewKeyring(key)
}

func newProcUserProcessor(t *testing.T) *Processor[procUser] {
	t.Helper()
	proc, err := NewProcessor[procUser](testCodec{}, WithRegistry(NewRegistry()))
	if err != nil {
		t.Fatalf("NewProcessor() error: %v", err)
	}
	return proc
}

func TestNewProcessor(t *testing.T) {
	proc := newProcUserProcessor(t)
	if proc.Entry() == nil || proc.Entry().TypeName() == "" {
		t.Fatal("Entry() should describe procUser")
	}
	if got := proc.Entry().Fields(); len(got) != 1 || got[0] != "Email" {
		t.Errorf("Fields() = %v, want [Email]", got)
	}

	type plain struct{ Name string }
	if _, err := NewProcessor[plain](testCodec{}, WithRegistry(NewRegistry())); !errors.Is(err, ErrTypeNotEncryptable) {
		t.Errorf("NewProcessor(plain) error = %v, want ErrTypeNotEncryptable", err)
	}
}

func TestUse_PerRegistry(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()

	p1, err := Use[procUser](testCodec{}, WithRegistry(r1))
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	p2, err := Use[procUser](testCodec{}, WithRegistry(r1))
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	p3, err := Use[procUser](testCodec{}, WithRegistry(r2))
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if p1 != p2 {
		t.Error("Use() should cache per registry")
	}
	if p1 == p3 {
		t.Error("Use() should not share processors across registries")
	}
}

func TestProcessor_ReceiveStoreLoadSend(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)
	keys := procKeyring(t)

	e, err := proc.Receive(ctx, []byte(`{"name":"ada","email":"ada@example.com"}`), keys)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}

	stored, err := proc.Store(ctx, e)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if bytes.Contains(stored, []byte("ada@example.com")) {
		t.Fatalf("Store() leaked plaintext: %s", stored)
	}

	loaded, err := proc.Load(ctx, stored, keys)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !loaded.Linked() {
		t.Error("Load() should return a linked instance")
	}

	sent, err := proc.Send(ctx, loaded)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	var out procUser
	if err := json.Unmarshal(sent, &out); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if out.Name != "ada" || out.Email != "ada@example.com" {
		t.Errorf("Send() = %+v", out)
	}
}

func TestProcessor_LoadWithoutKey(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)

	e, err := proc.Receive(ctx, []byte(`{"name":"ada","email":"ada@example.com"}`), procKeyring(t))
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	stored, err := proc.Store(ctx, e)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	loaded, err := proc.Load(ctx, stored, nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	v, err := loaded.Get(ctx, "Email")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !IsLocked(v) {
		t.Errorf("Get() = %v, want Locked", v)
	}

	sent, err := proc.Send(ctx, loaded)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if bytes.Contains(sent, []byte("ada@example.com")) {
		t.Error("Send() without a key should not reveal the field")
	}
}

func TestProcessor_Nil(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)

	data, err := proc.Store(ctx, nil)
	if err != nil {
		t.Fatalf("Store(nil) error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Store(nil) = %s, want null", data)
	}
	data, err = proc.Send(ctx, nil)
	if err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Send(nil) = %s, want null", data)
	}
}

func TestProcessor_CodecErrors(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)

	for name, call := range map[string]func() error{
		"receive": func() error { _, err := proc.Receive(ctx, []byte("{{"), nil); return err },
		"load":    func() error { _, err := proc.Load(ctx, []byte("{{"), nil); return err },
	} {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, ErrUnmarshal) {
				t.Fatalf("error = %v, want ErrUnmarshal", err)
			}
			var codecErr *CodecError
			if !errors.As(err, &codecErr) || codecErr.Cause == nil {
				t.Errorf("error should be *CodecError with a cause, got %T", err)
			}
		})
	}
}

func TestProcessor_SendUnlinked(t *testing.T) {
	proc := newProcUserProcessor(t)

	_, err := proc.Send(context.Background(), &Encrypted[procUser]{})
	if !IsInstanceNotTracked(err) {
		t.Errorf("Send(unlinked) error = %v, want ErrInstanceNotTracked", err)
	}
}

func TestProcessor_StoreSealsDirectPlaintext(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)

	e, err := proc.Receive(ctx, []byte(`{"name":"ada","email":"ada@example.com"}`), procKeyring(t))
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}

	e.Value.Email = "stray@example.com"
	data, err := proc.Store(ctx, e)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if bytes.Contains(data, []byte("stray@example.com")) {
		t.Fatalf("Store() leaked plaintext: %s", data)
	}
	if e.Value.Email != "" {
		t.Error("Store() should move plaintext out of Value")
	}

	// Get and the stored form agree on the new value.
	got, err := e.Get(ctx, "Email")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != "stray@example.com" {
		t.Errorf("Get() = %v, want stray@example.com", got)
	}
}

func TestProcessor_StoreUnlinkedOmitsPlaintext(t *testing.T) {
	proc := newProcUserProcessor(t)
	e := &Encrypted[procUser]{Value: procUser{Name: "ada", Email: "stray@example.com"}}

	data, err := proc.Store(context.Background(), e)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if bytes.Contains(data, []byte("stray@example.com")) {
		t.Fatalf("Store() leaked plaintext: %s", data)
	}
	if !bytes.Contains(data, []byte("ada")) {
		t.Errorf("Store() dropped an unmarked field: %s", data)
	}
	if e.Value.Email != "stray@example.com" {
		t.Error("Store() should not modify an unlinked value")
	}
}

func TestOpen_IgnoresDirectPlaintext(t *testing.T) {
	ctx := context.Background()
	proc := newProcUserProcessor(t)

	e, err := proc.Receive(ctx, []byte(`{"name":"ada","email":"ada@example.com"}`), nil)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	e.Value.Email = "stray@example.com"

	plain, locked, err := e.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if plain.Email != "" {
		t.Errorf("Open().Email = %q, want empty for a locked field", plain.Email)
	}
	if len(locked) != 1 || locked[0] != "Email" {
		t.Errorf("locked = %v, want [Email]", locked)
	}

	sent, err := proc.Send(ctx, e)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if bytes.Contains(sent, []byte("stray@example.com")) {
		t.Errorf("Send() leaked plaintext: %s", sent)
	}
}
