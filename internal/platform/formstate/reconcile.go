package formstate

import (
	"fmt"
	"reflect"
	"sort"
)

// RepairAction names what reconciliation did to a persisted value.
type RepairAction string

const (
	RepairFilledDefault   RepairAction = "filled_default"
	RepairCoercedArray    RepairAction = "coerced_to_array"
	RepairCoercedBoolean  RepairAction = "coerced_to_boolean"
	RepairCoercedObject   RepairAction = "coerced_to_object"
	RepairDroppedResource RepairAction = "dropped_resource"
	RepairNormalized      RepairAction = "normalized"
	RepairDroppedUnknown  RepairAction = "dropped_unknown"
)

// Repair is one entry of the reconciliation audit.
type Repair struct {
	Field  string       `json:"field"`
	Action RepairAction `json:"action"`
	// From describes the shape of the value that was replaced.
	From string `json:"from,omitempty"`
}

// Reconcile repairs a persisted value map against the schema: it starts from
// fresh defaults, overlays every known key and coerces each value to its
// field kind. Keys the schema no longer declares are dropped. Reconcile
// never fails; the returned audit lists every change it made, sorted by
// declaration order.
func (s *Schema) Reconcile(persisted map[string]any) (FieldMap, []Repair) {
	out := s.Defaults()
	var repairs []Repair

	for _, f := range s.fields {
		raw, ok := persisted[f.Name]
		if !ok {
			repairs = append(repairs, Repair{Field: f.Name, Action: RepairFilledDefault})
			continue
		}
		v, action := s.coerce(f, raw)
		if action != "" {
			repairs = append(repairs, Repair{Field: f.Name, Action: action, From: describe(raw)})
		}
		out[f.Name] = v
	}

	var unknown []string
	for k := range persisted {
		if !s.Has(k) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		repairs = append(repairs, Repair{Field: k, Action: RepairDroppedUnknown, From: describe(persisted[k])})
	}

	return out, repairs
}

// Coerce returns v repaired to the kind of the named field.
func (s *Schema) Coerce(name string, v any) (any, error) {
	f, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	out, _ := s.coerce(f, v)
	return out, nil
}

func (s *Schema) coerce(f Field, raw any) (any, RepairAction) {
	var (
		v      any
		action RepairAction
	)
	switch f.Kind {
	case KindArray:
		switch t := raw.(type) {
		case []any:
			v = Clone(t)
		case []string:
			v = Clone(t)
		default:
			v, action = []any{}, RepairCoercedArray
		}
	case KindBoolean:
		if b, ok := raw.(bool); ok {
			v = b
		} else {
			v, action = Truthy(raw), RepairCoercedBoolean
		}
	case KindObject, KindSchedule:
		if m, ok := raw.(map[string]any); ok {
			v = Clone(m)
		} else {
			v, action = map[string]any{}, RepairCoercedObject
		}
	case KindResource:
		switch t := raw.(type) {
		case nil:
			v = nil
		case *Resource:
			v = t
		default:
			if d, ok := DescriptorFromValue(t); ok {
				v = d
			} else {
				v, action = nil, RepairDroppedResource
			}
		}
	default:
		v = Clone(raw)
	}

	if f.Repair != nil {
		repaired := f.Repair(v)
		if action == "" && !reflect.DeepEqual(repaired, v) {
			action = RepairNormalized
		}
		v = repaired
	}
	return v, action
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
