// Package wizard drives a multi-step form over a formstate.Schema: it gates
// step advancement on required fields, keeps the draft of each session
// persisted through a draft.Store and latches the final submission.
package wizard

import (
	"fmt"

	"github.com/ehr/carewizard/internal/platform/formstate"
)

// Step is one page of the wizard.
type Step struct {
	Key      string   `yaml:"key" json:"key"`
	Label    string   `yaml:"label" json:"label"`
	Required []string `yaml:"required" json:"required"`
}

// Labeler maps field names to human-readable labels. An empty result means
// no label is known.
type Labeler interface {
	Label(field string) string
}

// Gate evaluates required-field presence per step.
type Gate struct {
	schema *formstate.Schema
	steps  []Step
	// required holds each step's fields in schema-declaration order.
	required [][]formstate.Field
}

// NewGate checks that every required field exists in schema.
func NewGate(schema *formstate.Schema, steps []Step) (*Gate, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("wizard needs at least one step")
	}
	g := &Gate{schema: schema, steps: steps, required: make([][]formstate.Field, len(steps))}
	seen := make(map[string]bool, len(steps))
	for i, st := range steps {
		if st.Key == "" || seen[st.Key] {
			return nil, fmt.Errorf("step %d: missing or duplicate key %q", i, st.Key)
		}
		seen[st.Key] = true

		want := make(map[string]bool, len(st.Required))
		for _, name := range st.Required {
			if !schema.Has(name) {
				return nil, fmt.Errorf("step %s: %w: %s", st.Key, formstate.ErrUnknownField, name)
			}
			want[name] = true
		}
		for _, f := range schema.Fields() {
			if want[f.Name] {
				g.required[i] = append(g.required[i], f)
			}
		}
	}
	return g, nil
}

func (g *Gate) Schema() *formstate.Schema { return g.schema }

func (g *Gate) Steps() []Step {
	out := make([]Step, len(g.steps))
	copy(out, g.steps)
	return out
}

func (g *Gate) Len() int { return len(g.steps) }

// Index returns the position of the step with key, or -1.
func (g *Gate) Index(key string) int {
	for i, st := range g.steps {
		if st.Key == key {
			return i
		}
	}
	return -1
}

// IsStepSatisfied reports whether every required field of step i is present.
func (g *Gate) IsStepSatisfied(i int, m formstate.FieldMap) bool {
	for _, f := range g.required[i] {
		if !present(f.Kind, m[f.Name]) {
			return false
		}
	}
	return true
}

// MissingFields returns the required fields of step i that are not present,
// in schema-declaration order. It is empty exactly when IsStepSatisfied
// holds.
func (g *Gate) MissingFields(i int, m formstate.FieldMap) []string {
	var missing []string
	for _, f := range g.required[i] {
		if !present(f.Kind, m[f.Name]) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// MissingLabels is MissingFields mapped through LabelNames.
func (g *Gate) MissingLabels(i int, m formstate.FieldMap, labels Labeler) []string {
	return LabelNames(g.MissingFields(i, m), labels)
}

// LabelNames maps field names through labels, falling back to the name.
func LabelNames(names []string, labels Labeler) []string {
	out := make([]string, len(names))
	for j, name := range names {
		out[j] = name
		if labels != nil {
			if l := labels.Label(name); l != "" {
				out[j] = l
			}
		}
	}
	return out
}

func present(kind formstate.Kind, v any) bool {
	switch kind {
	case formstate.KindSchedule:
		days, _ := v.(map[string]any)
		for _, d := range days {
			day, _ := d.(map[string]any)
			if formstate.Truthy(day["enabled"]) {
				return true
			}
		}
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	case bool:
		return t
	case *formstate.Resource:
		return t != nil
	default:
		return true
	}
}
