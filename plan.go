package cloak

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/sentinel"
)

// tagEncrypt is the struct tag that marks a field as encrypted.
// The tag value names the key the field requires: `encrypt:"pii"`.
const tagEncrypt = "encrypt"

func init() {
	sentinel.Tag(tagEncrypt)
}

// valueKind selects how a marked field's value becomes plaintext bytes.
type valueKind int

const (
	kindString  valueKind = iota // sealed as raw UTF-8
	kindBytes                    // sealed as raw bytes
	kindEncoded                  // msgpack-encoded before sealing
)

// fieldPlan describes how to intercept a single marked field.
type fieldPlan struct {
	name  string       // field name, used for lookup and as AEAD context
	index []int        // reflect.Value.FieldByIndex access path
	typ   reflect.Type // plaintext Go type
	keyID string       // key the field requires
	kind  valueKind
}

// typePlan holds the marked fields of one plain type.
type typePlan struct {
	typ      reflect.Type
	typeName string
	marked   []fieldPlan
	byName   map[string]int
}

func (p *typePlan) field(name string) (*fieldPlan, bool) {
	i, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return &p.marked[i], true
}

// buildTypePlan creates the field plan for T from the Marker override or
// from encrypt struct tags.
func buildTypePlan[T any]() (*typePlan, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, newTypeError(ErrTypeNotEncryptable, typ)
	}

	plan := &typePlan{
		typ:      typ,
		typeName: typ.String(),
		byName:   make(map[string]int),
	}

	var zero T
	if m, ok := any(&zero).(Marker); ok {
		if err := plan.addMarked(m.EncryptedFields()); err != nil {
			return nil, err
		}
	} else {
		meta := sentinel.Scan[T]()
		if meta.TypeName != "" {
			plan.typeName = meta.TypeName
		}
		tagged := make(map[string]string)
		for _, field := range meta.Fields {
			if val, ok := field.Tags[tagEncrypt]; ok {
				tagged[field.Name] = val
			}
		}
		// Pick up direct tags sentinel did not report.
		for i := 0; i < typ.NumField(); i++ {
			sf := typ.Field(i)
			if val, ok := sf.Tag.Lookup(tagEncrypt); ok {
				if _, seen := tagged[sf.Name]; !seen {
					tagged[sf.Name] = val
				}
			}
		}
		if err := plan.addMarked(tagged); err != nil {
			return nil, err
		}
	}

	if len(plan.marked) == 0 {
		return nil, newTypeError(ErrTypeNotEncryptable, typ)
	}
	return plan, nil
}

// addMarked adds plans for the named fields in declaration order.
func (p *typePlan) addMarked(fields map[string]string) error {
	for i := 0; i < p.typ.NumField(); i++ {
		sf := p.typ.Field(i)
		keyID, ok := fields[sf.Name]
		if !ok {
			continue
		}
		keyID = strings.TrimSpace(keyID)
		if keyID == "" {
			return fmt.Errorf("%w: field %s.%s names no key", ErrInvalidTag, p.typeName, sf.Name)
		}
		if !sf.IsExported() {
			return fmt.Errorf("%w: field %s.%s is unexported", ErrInvalidTag, p.typeName, sf.Name)
		}

		kind := kindEncoded
		switch {
		case sf.Type.Kind() == reflect.String:
			kind = kindString
		case sf.Type.Kind() == reflect.Slice && sf.Type.Elem().Kind() == reflect.Uint8:
			kind = kindBytes
		}

		p.byName[sf.Name] = len(p.marked)
		p.marked = append(p.marked, fieldPlan{
			name:  sf.Name,
			index: sf.Index,
			typ:   sf.Type,
			keyID: keyID,
			kind:  kind,
		})
	}

	for name := range fields {
		if _, ok := p.byName[name]; !ok {
			return fmt.Errorf("%w: %s has no field %s", ErrInvalidTag, p.typeName, name)
		}
	}
	return nil
}

// keyIDs returns the distinct key identifiers the type requires.
func (p *typePlan) keyIDs() []string {
	seen := make(map[string]bool, len(p.marked))
	var out []string
	for _, f := range p.marked {
		if !seen[f.keyID] {
			seen[f.keyID] = true
			out = append(out, f.keyID)
		}
	}
	return out
}
