package careplan

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestNormalizeCareType(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"S", CareTypeSingleHanded, true},
		{"  s ", CareTypeSingleHanded, true},
		{"single handed call", CareTypeSingleHanded, true},
		{"Personal Care", CareTypeSingleHanded, true},
		{"d", CareTypeDoubleHanded, true},
		{"Double-Handed", CareTypeDoubleHanded, true},
		{"Special Care", CareTypeSpecialCare, true},
		{"specialcare", CareTypeSpecialCare, true},
		{[]any{"special_care", "single"}, CareTypeSpecialCare, true},
		{[]any{"Single Handed Call"}, CareTypeSingleHanded, true},
		{"Hourly", "", false},
		{"", "", false},
		{nil, "", false},
		{[]any{}, "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCareType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeCareType(%#v) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc := london(t)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, loc), true},
		{"03-05-2024", time.Date(2024, 3, 5, 0, 0, 0, 0, loc), true},
		{"2024-03-05T10:00:00Z", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), true},
		{"2024-06-01T09:15", time.Date(2024, 6, 1, 9, 15, 0, 0, loc), true},
		{"2024-13-40", time.Time{}, false},
		{"next tuesday", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in, loc)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFirstObservedInstant(t *testing.T) {
	loc := london(t)
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"2024-03-05", "2024-03-05T08:00:00.000Z", true},
		{"2024-03-05T10:30:00Z", "2024-03-05T10:30:00.000Z", true},
		{"2024-03-05T10:30:00+01:00", "2024-03-05T09:30:00.000Z", true},
		// local midnight in summer is the previous UTC day
		{"06-15-2024", "2024-06-14T08:00:00.000Z", true},
		{"garbage", "", false},
		{"", "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := FirstObservedInstant(tt.in, loc)
		if ok != tt.ok {
			t.Errorf("FirstObservedInstant(%#v) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && At(got).String() != tt.want {
			t.Errorf("FirstObservedInstant(%#v) = %s, want %s", tt.in, At(got), tt.want)
		}
	}
}

func TestSlotInstant(t *testing.T) {
	loc := london(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	got, ok := slotInstant("09:30", now, loc)
	if !ok {
		t.Fatal("expected wall clock time to parse")
	}
	if want := "2024-06-15T08:30:00.000Z"; At(got).String() != want {
		t.Errorf("expected %s, got %s", want, At(got))
	}

	for _, in := range []any{"25:00", "9:30", "", nil} {
		if _, ok := slotInstant(in, now, loc); ok {
			t.Errorf("expected %#v to be rejected", in)
		}
	}

	if _, ok := slotInstant("2024-06-15T09:00:00Z", now, loc); !ok {
		t.Error("expected full timestamp to parse")
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   any
		want []string
	}{
		{"a, b,,c ", []string{"a", "b", "c"}},
		{[]any{"x", " ", "y"}, []string{"x", "y"}},
		{"   ", []string{}},
		{nil, []string{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitList(tt.in)); diff != "" {
			t.Errorf("splitList(%#v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
	if got := joinList([]any{"Halal", "Low salt"}); got != "Halal, Low salt" {
		t.Errorf("unexpected join: %q", got)
	}
}

func TestAffirmative(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"yes", true},
		{"Yes", true},
		{"no", false},
		{[]any{"yes"}, true},
		{[]any{"no"}, false},
		{[]any{}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := affirmative(tt.in); got != tt.want {
			t.Errorf("affirmative(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNumber(t *testing.T) {
	if n := number(""); n == nil || *n != 0 {
		t.Errorf("expected blank to be 0, got %v", n)
	}
	if n := number("3"); n == nil || *n != 3 {
		t.Errorf("expected 3, got %v", n)
	}
	if n := number("several"); n != nil {
		t.Errorf("expected nil, got %v", *n)
	}
}

func TestTextCleaner(t *testing.T) {
	c := newTextCleaner()
	tests := []struct{ in, want string }{
		{"Walks with a frame", "Walks with a frame"},
		{"<b>Hi</b> & bye", "Hi & bye"},
		{"<script>alert(1)</script>ok", "ok"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.clean(tt.in); got != tt.want {
			t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
