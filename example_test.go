package cloak_test

import (
	"context"
	"fmt"

	"github.com/zoobzio/cloak"
	"github.com/zoobzio/cloak/json"
)

type Patient struct {
	Name string
	SSN  string `encrypt:"pii"`
}

func Example() {
	ctx := context.Background()
	r := cloak.NewRegistry()
	key, _ := cloak.GenerateKey("pii", 32)

	p, _ := cloak.AsEncrypted(ctx, &Patient{Name: "A", SSN: "123"}, cloak.NewKeyring(key), cloak.WithRegistry(r))
	ssn, _ := p.Get(ctx, "SSN")
	fmt.Println(p.Value.Name, ssn)

	// A second patient wrapped without the key cannot read its SSN.
	q, _ := cloak.AsEncrypted(ctx, &Patient{Name: "B", SSN: "456"}, nil, cloak.WithRegistry(r))
	locked, _ := q.Get(ctx, "SSN")
	fmt.Println(q.Value.Name, cloak.IsLocked(locked))

	// Output:
	// A 123
	// B true
}

func ExampleRelink() {
	ctx := context.Background()
	r := cloak.NewRegistry()
	key, _ := cloak.GenerateKey("pii", 32)

	stored, _ := cloak.AsEncrypted(ctx, &Patient{Name: "A", SSN: "123"}, cloak.NewKeyring(key), cloak.WithRegistry(r))

	// A value decoded from storage carries ciphertext but no interceptor.
	loaded := &cloak.Encrypted[Patient]{Value: stored.Value, Sealed: stored.Sealed}
	fmt.Println(loaded.Linked())

	_ = cloak.Relink(ctx, loaded, cloak.NewKeyring(key), cloak.WithRegistry(r))
	ssn, ok, _ := cloak.Field[string](ctx, loaded, "SSN")
	fmt.Println(loaded.Linked(), ssn, ok)

	// Output:
	// false
	// true 123 true
}

func ExampleLocked() {
	ctx := context.Background()
	r := cloak.NewRegistry()

	p, _ := cloak.AsEncrypted(ctx, &Patient{Name: "A"}, nil, cloak.WithRegistry(r))
	v, _ := p.Get(ctx, "SSN")
	fmt.Println(v)

	err := p.Set(ctx, "SSN", "123")
	fmt.Println(cloak.IsNoEncryptionKey(err))

	// Output:
	// <locked SSN key=pii>
	// true
}

// patientStore keeps patients in their stored form, keyed by ID.
type patientStore struct {
	proc *cloak.Processor[Patient]
	rows map[int][]byte
}

func (s *patientStore) Put(ctx context.Context, id int, p *cloak.Encrypted[Patient]) error {
	data, err := s.proc.Store(ctx, p)
	if err != nil {
		return err
	}
	s.rows[id] = data
	return nil
}

func (s *patientStore) Get(ctx context.Context, id int, keyring *cloak.Keyring) (*cloak.Encrypted[Patient], error) {
	return s.proc.Load(ctx, s.rows[id], keyring)
}

func Example_patientStore() {
	ctx := context.Background()
	r := cloak.NewRegistry()
	key, _ := cloak.GenerateKey("pii", 32)

	proc, _ := cloak.NewProcessor[Patient](json.New(), cloak.WithRegistry(r))
	store := &patientStore{proc: proc, rows: make(map[int][]byte)}

	p, _ := proc.Receive(ctx, []byte(`{"Name":"A","SSN":"123"}`), cloak.NewKeyring(key))
	_ = store.Put(ctx, 1, p)

	withKey, _ := store.Get(ctx, 1, cloak.NewKeyring(key))
	ssn, _ := withKey.Get(ctx, "SSN")
	fmt.Println(withKey.Value.Name, ssn)

	withoutKey, _ := store.Get(ctx, 1, nil)
	locked, _ := withoutKey.LockedFields(ctx)
	fmt.Println(withoutKey.Value.Name, locked)

	// Output:
	// A 123
	// A [SSN]
}
