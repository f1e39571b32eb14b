package wizard

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/google/go-cmp/cmp"
)

func testSchema() *formstate.Schema {
	return formstate.MustSchema(
		formstate.Field{Name: "risk_details", Kind: formstate.KindScalar},
		formstate.Field{Name: "stairs", Kind: formstate.KindScalar},
		formstate.Field{Name: "hazards", Kind: formstate.KindArray},
		formstate.Field{Name: "consent", Kind: formstate.KindBoolean},
		formstate.Field{Name: "care_type", Kind: formstate.KindScalar},
		formstate.Field{Name: "visits", Kind: formstate.KindSchedule},
	)
}

func testSteps() []Step {
	return []Step{
		{Key: "risk", Label: "Risk", Required: []string{"stairs", "risk_details"}},
		{Key: "notes", Label: "Notes"},
		{Key: "care", Label: "Care", Required: []string{"care_type", "visits"}},
		{Key: "legal", Label: "Legal", Required: []string{"consent", "hazards"}},
	}
}

func testGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(testSchema(), testSteps())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestNewGate_UnknownRequiredField(t *testing.T) {
	_, err := NewGate(testSchema(), []Step{{Key: "a", Required: []string{"ghost"}}})
	if !errors.Is(err, formstate.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestNewGate_DuplicateStep(t *testing.T) {
	if _, err := NewGate(testSchema(), []Step{{Key: "a"}, {Key: "a"}}); err == nil {
		t.Error("expected error for duplicate step key")
	}
}

func TestGate_MissingFieldsInSchemaOrder(t *testing.T) {
	g := testGate(t)
	m := g.Schema().Defaults()

	got := g.MissingFields(0, m)
	if diff := cmp.Diff([]string{"risk_details", "stairs"}, got); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	if g.IsStepSatisfied(0, m) {
		t.Error("expected step 0 unsatisfied")
	}
	if !g.IsStepSatisfied(1, m) {
		t.Error("expected step without requirements satisfied")
	}
}

func TestGate_Presence(t *testing.T) {
	g := testGate(t)
	tests := []struct {
		name   string
		fields formstate.FieldMap
		step   int
		want   []string
	}{
		{
			name:   "empty string and false are absent",
			fields: formstate.FieldMap{"consent": false, "hazards": []any{}},
			step:   3,
			want:   []string{"hazards", "consent"},
		},
		{
			name:   "non-empty array and true present",
			fields: formstate.FieldMap{"consent": true, "hazards": []any{"dog"}},
			step:   3,
		},
		{
			name: "schedule without enabled day",
			fields: formstate.FieldMap{
				"care_type": "single",
				"visits":    map[string]any{"monday": map[string]any{"enabled": false}},
			},
			step: 2,
			want: []string{"visits"},
		},
		{
			name: "schedule with enabled day",
			fields: formstate.FieldMap{
				"care_type": "single",
				"visits":    map[string]any{"monday": map[string]any{"enabled": true}},
			},
			step: 2,
		},
		{
			name:   "zero is present",
			fields: formstate.FieldMap{"risk_details": 0.0, "stairs": "none"},
			step:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.MissingFields(tt.step, tt.fields)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("missing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGate_SatisfiedIffNoMissing(t *testing.T) {
	g := testGate(t)
	r := rand.New(rand.NewSource(7))
	candidates := map[string][]any{
		"risk_details": {nil, "", "text", 0.0},
		"stairs":       {nil, "", "yes"},
		"hazards":      {[]any{}, []any{"x"}, nil},
		"consent":      {false, true, nil},
		"care_type":    {"", "double"},
		"visits": {
			map[string]any{},
			map[string]any{"tuesday": map[string]any{"enabled": true}},
			map[string]any{"tuesday": map[string]any{"enabled": false}},
			nil,
		},
	}

	for i := 0; i < 500; i++ {
		m := formstate.FieldMap{}
		for name, vals := range candidates {
			m[name] = vals[r.Intn(len(vals))]
		}
		for step := 0; step < g.Len(); step++ {
			sat := g.IsStepSatisfied(step, m)
			missing := g.MissingFields(step, m)
			if sat != (len(missing) == 0) {
				t.Fatalf("step %d: satisfied=%v but missing=%v for %v", step, sat, missing, m)
			}
		}
	}
}

func TestGate_MissingLabels(t *testing.T) {
	g := testGate(t)
	labels := Labels{"stairs": "Stairs"}
	got := g.MissingLabels(0, g.Schema().Defaults(), labels)
	if diff := cmp.Diff([]string{"risk_details", "Stairs"}, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelNames(t *testing.T) {
	got := LabelNames([]string{"stairs", "care_type"}, Labels{"stairs": "Stairs"})
	if diff := cmp.Diff([]string{"Stairs", "care_type"}, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if got := LabelNames([]string{"stairs"}, nil); got[0] != "stairs" {
		t.Errorf("expected raw name without a labeler, got %v", got)
	}
}
