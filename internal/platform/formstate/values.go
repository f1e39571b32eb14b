package formstate

import (
	"math"
	"strconv"
	"strings"
)

// FieldMap is the live value of every schema field for one record. Values
// are JSON-shaped (string, float64, bool, nil, []any, map[string]any) plus
// *Resource and ResourceDescriptor for attachment fields.
type FieldMap map[string]any

// Clone deep-copies the map. Resource handles are shared; they are never
// mutated after creation.
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Str returns the value as text: strings as-is, numbers
// formatted, everything else "".
func (m FieldMap) Str(name string) string {
	return AsString(m[name])
}

func (m FieldMap) Bool(name string) bool {
	b, _ := m[name].(bool)
	return b
}

// List returns the array value, or nil when the field is not an array.
func (m FieldMap) List(name string) []any {
	l, _ := m[name].([]any)
	return l
}

// Strings returns the string members of an array field.
func (m FieldMap) Strings(name string) []string {
	l := m.List(name)
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s := AsString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (m FieldMap) Object(name string) map[string]any {
	o, _ := m[name].(map[string]any)
	return o
}

// Contains reports whether the array field holds value.
func (m FieldMap) Contains(name string, value string) bool {
	for _, v := range m.List(name) {
		if AsString(v) == value {
			return true
		}
	}
	return false
}

// AsString renders scalar values as text.
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Clone deep-copies arrays and objects; other values are returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Truthy follows loose truthiness: null, false, "", 0 and NaN are false,
// everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case *Resource:
		return t != nil
	default:
		return true
	}
}

// Resource is an in-memory binary attachment. It cannot be persisted in a
// draft; drafts carry its ResourceDescriptor instead.
type Resource struct {
	Name        string
	ContentType string
	Data        []byte
}

func (r *Resource) Size() int64 { return int64(len(r.Data)) }

// Descriptor returns the persistable marker for r.
func (r *Resource) Descriptor() ResourceDescriptor {
	return ResourceDescriptor{
		Name:             r.Name,
		Size:             r.Size(),
		Kind:             r.ContentType,
		IsResourceMarker: true,
	}
}

// ResourceDescriptor stands in for an attachment whose bytes were not
// persisted. It records what the operator had selected.
type ResourceDescriptor struct {
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	Kind             string `json:"kind"`
	IsResourceMarker bool   `json:"isResourceMarker"`
}

// DescriptorFromValue recognizes a decoded descriptor object. Drafts written
// before the marker was renamed carry "_isFileObject" and "type".
func DescriptorFromValue(v any) (ResourceDescriptor, bool) {
	switch t := v.(type) {
	case ResourceDescriptor:
		return t, true
	case map[string]any:
		marker, _ := t["isResourceMarker"].(bool)
		legacy, _ := t["_isFileObject"].(bool)
		if !marker && !legacy {
			return ResourceDescriptor{}, false
		}
		d := ResourceDescriptor{IsResourceMarker: true}
		d.Name, _ = t["name"].(string)
		if size, ok := t["size"].(float64); ok && size >= 0 {
			d.Size = int64(size)
		}
		if kind, ok := t["kind"].(string); ok {
			d.Kind = kind
		} else if kind, ok := t["type"].(string); ok {
			d.Kind = kind
		}
		return d, true
	}
	return ResourceDescriptor{}, false
}

// IsBlank reports whether s is empty after trimming.
func IsBlank(s string) bool { return strings.TrimSpace(s) == "" }
