package cloak

import (
	"fmt"
	"sync"
)

// Key is a named piece of raw key material.
type Key struct {
	// ID identifies the key. Marked fields name the key they require by ID.
	ID string

	// Material is the raw key material handed to the cipher.
	Material []byte
}

// NewKey returns a Key holding a copy of material.
func NewKey(id string, material []byte) Key {
	return Key{ID: id, Material: append([]byte(nil), material...)}
}

// copy returns a Key with a copied byte slice, preventing callers from mutating internal state.
func (k Key) copy() Key {
	return NewKey(k.ID, k.Material)
}

func (k Key) validate() error {
	if k.ID == "" {
		return fmt.Errorf("%w: key ID must not be empty", ErrInvalidKey)
	}
	if len(k.Material) == 0 {
		return fmt.Errorf("%w: key %q has no material", ErrInvalidKey, k.ID)
	}
	return nil
}

// Keyring is an ordered set of keys, deduplicated by ID.
// The first key added for an ID wins; later keys with the same ID are ignored.
//
// A keyring can be frozen with MarkReadOnly, after which every mutation
// fails with ErrReadOnly and leaves the key set unchanged.
//
// Keyrings are safe for concurrent use.
type Keyring struct {
	mu       sync.RWMutex
	keys     []Key
	index    map[string]int
	readOnly bool
}

// NewKeyring returns a keyring holding keys. Invalid keys are skipped.
func NewKeyring(keys ...Key) *Keyring {
	k := &Keyring{index: make(map[string]int)}
	for _, key := range keys {
		if key.validate() != nil {
			continue
		}
		k.insert(key)
	}
	return k
}

// Merge returns a new keyring holding the union of rings, in argument order.
// Nil rings are skipped.
func Merge(rings ...*Keyring) *Keyring {
	merged := NewKeyring()
	for _, r := range rings {
		if r == nil {
			continue
		}
		for _, key := range r.Keys() {
			merged.insert(key)
		}
	}
	return merged
}

// insert adds key if its ID is new. Caller holds the write lock or owns k exclusively.
func (k *Keyring) insert(key Key) bool {
	if k.index == nil {
		k.index = make(map[string]int)
	}
	if _, ok := k.index[key.ID]; ok {
		return false
	}
	k.index[key.ID] = len(k.keys)
	k.keys = append(k.keys, key.copy())
	return true
}

// Add adds every key whose ID is not already present.
// Returns ErrReadOnly if the keyring is frozen, or ErrInvalidKey if any key
// is invalid; in both cases nothing is added.
func (k *Keyring) Add(keys ...Key) error {
	for _, key := range keys {
		if err := key.validate(); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.readOnly {
		return ErrReadOnly
	}
	for _, key := range keys {
		k.insert(key)
	}
	return nil
}

// Import adds every key from other that is not already present.
// Importing the same keyring twice yields the same key set as importing it once.
// A nil other is a no-op.
func (k *Keyring) Import(other *Keyring) error {
	if other == nil {
		return k.checkWritable()
	}

	// Snapshot first so two keyrings importing each other never hold both locks.
	incoming := other.Keys()

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.readOnly {
		return ErrReadOnly
	}
	for _, key := range incoming {
		k.insert(key)
	}
	return nil
}

// Remove deletes the key with the given ID. Removing an absent ID is a no-op.
func (k *Keyring) Remove(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.readOnly {
		return ErrReadOnly
	}
	i, ok := k.index[id]
	if !ok {
		return nil
	}
	k.keys = append(k.keys[:i], k.keys[i+1:]...)
	delete(k.index, id)
	for j := i; j < len(k.keys); j++ {
		k.index[k.keys[j].ID] = j
	}
	return nil
}

func (k *Keyring) checkWritable() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.readOnly {
		return ErrReadOnly
	}
	return nil
}

// MarkReadOnly freezes the keyring. It is idempotent and irreversible.
func (k *Keyring) MarkReadOnly() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.readOnly = true
}

// ReadOnly reports whether the keyring is frozen.
func (k *Keyring) ReadOnly() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.readOnly
}

// Len returns the number of keys.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Get returns a copy of the key with the given ID.
func (k *Keyring) Get(id string) (Key, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	i, ok := k.index[id]
	if !ok {
		return Key{}, false
	}
	return k.keys[i].copy(), true
}

// Keys returns copies of all keys in insertion order.
func (k *Keyring) Keys() []Key {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Key, len(k.keys))
	for i, key := range k.keys {
		out[i] = key.copy()
	}
	return out
}

// IDs returns the key identifiers in insertion order.
func (k *Keyring) IDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.keys))
	for i, key := range k.keys {
		out[i] = key.ID
	}
	return out
}

// Usable returns the keys c accepts for keyID, in keyring order.
func (k *Keyring) Usable(c Cipher, keyID string) []Key {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []Key
	for _, key := range k.keys {
		if c.Usable(key, keyID) {
			out = append(out, key.copy())
		}
	}
	return out
}

// ContainsUsableKey reports whether any key can serve keyID under cipher c.
func (k *Keyring) ContainsUsableKey(c Cipher, keyID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, key := range k.keys {
		if c.Usable(key, keyID) {
			return true
		}
	}
	return false
}

// Snapshot returns a read-only copy, safe to hand to callers that must not
// mutate the live keyring.
func (k *Keyring) Snapshot() *Keyring {
	s := Merge(k)
	s.readOnly = true
	return s
}
