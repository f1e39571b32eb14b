package formstate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrKindMismatch = errors.New("command does not apply to field kind")
)

// Command is one field mutation. The concrete types are the only
// implementations.
type Command interface {
	isCommand()
}

// SetField assigns a single value.
type SetField struct {
	Name  string
	Value any
}

// MergeFields assigns several values at once.
type MergeFields struct {
	Values map[string]any
}

// ToggleArrayMember adds Value to (Checked) or removes it from an array
// field. Membership has set semantics.
type ToggleArrayMember struct {
	Name    string
	Value   any
	Checked bool
}

// ToggleBoolean sets a boolean field.
type ToggleBoolean struct {
	Name    string
	Checked bool
}

func (SetField) isCommand()          {}
func (MergeFields) isCommand()       {}
func (ToggleArrayMember) isCommand() {}
func (ToggleBoolean) isCommand()     {}

// Apply returns a new FieldMap with cmds applied in order. The input map is
// left untouched; if any command fails none of them take effect.
func (s *Schema) Apply(m FieldMap, cmds ...Command) (FieldMap, error) {
	next := make(FieldMap, len(m))
	for k, v := range m {
		next[k] = v
	}
	for _, cmd := range cmds {
		if err := s.apply(next, cmd); err != nil {
			return m, err
		}
	}
	return next, nil
}

func (s *Schema) apply(m FieldMap, cmd Command) error {
	switch c := cmd.(type) {
	case SetField:
		return s.set(m, c.Name, c.Value)
	case MergeFields:
		names := make([]string, 0, len(c.Values))
		for name := range c.Values {
			if !s.Has(name) {
				return fmt.Errorf("%w: %s", ErrUnknownField, name)
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := s.set(m, name, c.Values[name]); err != nil {
				return err
			}
		}
		return nil
	case ToggleArrayMember:
		f, err := s.fieldOfKind(c.Name, KindArray)
		if err != nil {
			return err
		}
		current, _ := m[f.Name].([]any)
		next := make([]any, 0, len(current)+1)
		found := false
		for _, v := range current {
			if reflect.DeepEqual(v, c.Value) {
				if !c.Checked || found {
					continue
				}
				found = true
			}
			next = append(next, v)
		}
		if c.Checked && !found {
			next = append(next, Clone(c.Value))
		}
		m[f.Name] = next
		return nil
	case ToggleBoolean:
		f, err := s.fieldOfKind(c.Name, KindBoolean)
		if err != nil {
			return err
		}
		m[f.Name] = c.Checked
		return nil
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}

func (s *Schema) set(m FieldMap, name string, value any) error {
	f, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	v, _ := s.coerce(f, value)
	m[name] = v
	return nil
}

func (s *Schema) fieldOfKind(name string, kind Kind) (Field, error) {
	f, ok := s.Lookup(name)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if f.Kind != kind {
		return Field{}, fmt.Errorf("%w: %s is %s, not %s", ErrKindMismatch, name, f.Kind, kind)
	}
	return f, nil
}
