package formstate

import (
	"errors"
	"testing"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		Field{Name: "title", Kind: KindScalar},
		Field{Name: "allergies", Kind: KindArray},
		Field{Name: "needs", Kind: KindArray, Default: []any{"glasses"}},
		Field{Name: "uses_glasses", Kind: KindBoolean},
		Field{Name: "visits", Kind: KindSchedule},
		Field{Name: "upload", Kind: KindResource},
		Field{Name: "mobility", Kind: KindScalar, Default: "INDEPENDENT"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewSchema_Duplicate(t *testing.T) {
	_, err := NewSchema(
		Field{Name: "a", Kind: KindScalar},
		Field{Name: "a", Kind: KindArray},
	)
	if !errors.Is(err, ErrDuplicateField) {
		t.Errorf("expected ErrDuplicateField, got %v", err)
	}
}

func TestNewSchema_InvalidDefault(t *testing.T) {
	_, err := NewSchema(Field{Name: "a", Kind: KindArray, Default: "x"})
	if !errors.Is(err, ErrInvalidDefault) {
		t.Errorf("expected ErrInvalidDefault, got %v", err)
	}
}

func TestNewSchema_EmptyName(t *testing.T) {
	if _, err := NewSchema(Field{Kind: KindScalar}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestSchema_Order(t *testing.T) {
	s := testSchema(t)
	names := s.Names()
	if names[0] != "title" || names[len(names)-1] != "mobility" {
		t.Errorf("unexpected order: %v", names)
	}
	if s.Position("visits") != 4 {
		t.Errorf("expected visits at 4, got %d", s.Position("visits"))
	}
	if s.Position("missing") != -1 {
		t.Error("expected -1 for unknown field")
	}
}

func TestSchema_DefaultsAreFresh(t *testing.T) {
	s := testSchema(t)
	a := s.Defaults()
	b := s.Defaults()

	a["needs"] = append(a.List("needs"), "hearing_aid")
	if len(b.List("needs")) != 1 {
		t.Errorf("defaults shared between maps: %v", b["needs"])
	}
	if a.Str("mobility") != "INDEPENDENT" {
		t.Errorf("expected INDEPENDENT, got %q", a.Str("mobility"))
	}
	if a.Bool("uses_glasses") {
		t.Error("expected boolean default false")
	}
	if a.Object("visits") == nil {
		t.Error("expected schedule default to be an empty object")
	}
	if a["upload"] != nil {
		t.Errorf("expected nil resource default, got %v", a["upload"])
	}
}

func TestSchema_DefaultFunc(t *testing.T) {
	n := 0
	s := MustSchema(Field{Name: "stamp", Kind: KindScalar, DefaultFunc: func() any {
		n++
		return "call"
	}})
	s.Defaults()
	s.Defaults()
	if n != 2 {
		t.Errorf("expected DefaultFunc evaluated per map, got %d calls", n)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{"", false},
		{"x", true},
		{0.0, false},
		{1.0, true},
		{false, false},
		{[]any{}, true},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDescriptorFromValue_Legacy(t *testing.T) {
	d, ok := DescriptorFromValue(map[string]any{
		"name":          "scan.pdf",
		"size":          2048.0,
		"type":          "application/pdf",
		"_isFileObject": true,
	})
	if !ok {
		t.Fatal("expected legacy marker to be recognized")
	}
	if d.Name != "scan.pdf" || d.Size != 2048 || d.Kind != "application/pdf" || !d.IsResourceMarker {
		t.Errorf("unexpected descriptor: %+v", d)
	}

	if _, ok := DescriptorFromValue(map[string]any{"name": "x"}); ok {
		t.Error("expected object without marker to be rejected")
	}
}
