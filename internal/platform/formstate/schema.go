// Package formstate models the static field schema of a long-form record and
// the live FieldMap that a wizard session mutates. Every value in a FieldMap
// conforms to the Kind its schema field declares; values entering the map
// from mutations or persisted drafts are repaired to that kind rather than
// rejected.
package formstate

import (
	"errors"
	"fmt"
)

// Kind is the canonical shape of a field's value.
type Kind int

const (
	// KindScalar holds a string, a number or null.
	KindScalar Kind = iota
	KindArray
	KindObject
	KindBoolean
	// KindResource holds a binary attachment handle, its persisted
	// descriptor, or null.
	KindResource
	// KindSchedule is the weekly composite: an object keyed by day whose
	// entries carry an "enabled" flag and a list of time slots.
	KindSchedule
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindBoolean:
		return "boolean"
	case KindResource:
		return "resource"
	case KindSchedule:
		return "schedule"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field declares one entry of a Schema.
type Field struct {
	Name string
	Kind Kind
	// Default is deep-copied into every fresh FieldMap. A nil Default
	// yields the zero value of the kind ([] for arrays, {} for objects and
	// schedules, false for booleans, null otherwise).
	Default any
	// DefaultFunc, when set, is evaluated per FieldMap instead of Default.
	DefaultFunc func() any
	// Repair normalizes a kind-conforming value, e.g. reshaping rows of a
	// list field. It must be idempotent.
	Repair func(any) any
}

var (
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidDefault = errors.New("default does not match field kind")
)

// Schema is an ordered, immutable set of fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates the declarations and returns a Schema preserving their
// order.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field at position %d has no name", len(s.fields))
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		if f.DefaultFunc == nil && f.Default != nil && !conforms(f.Kind, f.Default) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrInvalidDefault, f.Name, f.Kind)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level catalogs.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declarations in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Position returns the declaration index of name, or -1.
func (s *Schema) Position(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Defaults returns a fresh FieldMap. Arrays and objects are never shared
// between calls.
func (s *Schema) Defaults() FieldMap {
	m := make(FieldMap, len(s.fields))
	for _, f := range s.fields {
		m[f.Name] = f.defaultValue()
	}
	return m
}

func (f Field) defaultValue() any {
	if f.DefaultFunc != nil {
		return Clone(f.DefaultFunc())
	}
	if f.Default != nil {
		return Clone(f.Default)
	}
	switch f.Kind {
	case KindArray:
		return []any{}
	case KindObject, KindSchedule:
		return map[string]any{}
	case KindBoolean:
		return false
	default:
		return nil
	}
}

func conforms(k Kind, v any) bool {
	switch k {
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindObject, KindSchedule:
		_, ok := v.(map[string]any)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindResource:
		switch v.(type) {
		case *Resource, ResourceDescriptor:
			return true
		}
		return false
	default:
		switch v.(type) {
		case string, float64, int, int64:
			return true
		}
		return false
	}
}
