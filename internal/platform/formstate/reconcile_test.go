package formstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReconcile_FillsMissingAndDropsUnknown(t *testing.T) {
	s := testSchema(t)
	got, repairs := s.Reconcile(map[string]any{
		"title":   "Plan",
		"retired": "old",
	})

	if got.Str("title") != "Plan" {
		t.Errorf("expected title kept, got %q", got.Str("title"))
	}
	if _, ok := got["retired"]; ok {
		t.Error("expected unknown key dropped")
	}
	if got.Str("mobility") != "INDEPENDENT" {
		t.Errorf("expected default filled, got %q", got.Str("mobility"))
	}

	var dropped, filled int
	for _, r := range repairs {
		switch r.Action {
		case RepairDroppedUnknown:
			dropped++
		case RepairFilledDefault:
			filled++
		}
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped repair, got %d", dropped)
	}
	if filled != len(s.Names())-1 {
		t.Errorf("expected %d filled repairs, got %d", len(s.Names())-1, filled)
	}
}

func TestReconcile_CoercesKinds(t *testing.T) {
	s := testSchema(t)
	got, repairs := s.Reconcile(map[string]any{
		"title":        "x",
		"allergies":    "peanuts",
		"needs":        []string{"glasses"},
		"uses_glasses": "yes",
		"visits":       "monday",
		"upload":       map[string]any{"name": "a.png"},
		"mobility":     "INDEPENDENT",
	})

	if l := got.List("allergies"); l == nil || len(l) != 0 {
		t.Errorf("expected empty array, got %#v", got["allergies"])
	}
	if diff := cmp.Diff([]any{"glasses"}, got["needs"]); diff != "" {
		t.Errorf("needs mismatch (-want +got):\n%s", diff)
	}
	if !got.Bool("uses_glasses") {
		t.Error("expected truthy string coerced to true")
	}
	if got.Object("visits") == nil {
		t.Errorf("expected empty schedule object, got %#v", got["visits"])
	}
	if got["upload"] != nil {
		t.Errorf("expected non-descriptor upload dropped, got %#v", got["upload"])
	}

	want := map[string]RepairAction{
		"allergies":    RepairCoercedArray,
		"uses_glasses": RepairCoercedBoolean,
		"visits":       RepairCoercedObject,
		"upload":       RepairDroppedResource,
	}
	gotActions := map[string]RepairAction{}
	for _, r := range repairs {
		gotActions[r.Field] = r.Action
	}
	if diff := cmp.Diff(want, gotActions); diff != "" {
		t.Errorf("repairs mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_KeepsDescriptor(t *testing.T) {
	s := testSchema(t)
	got, _ := s.Reconcile(map[string]any{
		"upload": map[string]any{"name": "a.png", "size": 10.0, "kind": "image/png", "isResourceMarker": true},
	})
	d, ok := got["upload"].(ResourceDescriptor)
	if !ok {
		t.Fatalf("expected ResourceDescriptor, got %T", got["upload"])
	}
	if d.Name != "a.png" || d.Size != 10 {
		t.Errorf("unexpected descriptor: %+v", d)
	}
}

func TestReconcile_RepairHook(t *testing.T) {
	s := MustSchema(Field{
		Name: "log",
		Kind: KindArray,
		Repair: func(v any) any {
			rows, _ := v.([]any)
			out := make([]any, 0, len(rows))
			for _, r := range rows {
				m, _ := r.(map[string]any)
				out = append(out, map[string]any{"time": AsString(m["time"]), "amount": AsString(m["amount"])})
			}
			return out
		},
	})
	got, repairs := s.Reconcile(map[string]any{
		"log": []any{map[string]any{"time": "08:00"}},
	})
	want := []any{map[string]any{"time": "08:00", "amount": ""}}
	if diff := cmp.Diff(want, got["log"]); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	if len(repairs) != 1 || repairs[0].Action != RepairNormalized {
		t.Errorf("expected one normalized repair, got %+v", repairs)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	s := testSchema(t)
	inputs := []map[string]any{
		nil,
		{},
		{"title": 4.0, "allergies": map[string]any{}, "uses_glasses": 1.0},
		{"needs": []any{"a", "b"}, "visits": map[string]any{"monday": map[string]any{"enabled": true}}},
		{"upload": map[string]any{"_isFileObject": true, "name": "x", "size": 3.0, "type": "text/plain"}},
		{"junk": []any{1.0}, "mobility": nil},
	}
	for i, in := range inputs {
		once, _ := s.Reconcile(in)
		twice, repairs := s.Reconcile(once)
		if diff := cmp.Diff(map[string]any(once), map[string]any(twice)); diff != "" {
			t.Errorf("case %d: reconcile not idempotent (-once +twice):\n%s", i, diff)
		}
		if len(repairs) != 0 {
			t.Errorf("case %d: expected no repairs on second pass, got %+v", i, repairs)
		}
	}
}
