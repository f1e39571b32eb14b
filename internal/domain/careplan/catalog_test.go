package careplan

import (
	"strings"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	steps := c.Gate.Steps()
	if len(steps) != 11 {
		t.Fatalf("expected 11 steps, got %d", len(steps))
	}
	if steps[0].Key != "risk-assessment" || steps[len(steps)-1].Key != "legal" {
		t.Errorf("unexpected step order: %s .. %s", steps[0].Key, steps[len(steps)-1].Key)
	}
	if c.Gate.Index("care-requirements") != 9 {
		t.Errorf("expected care-requirements at 9, got %d", c.Gate.Index("care-requirements"))
	}
}

func TestCatalog_EveryRequiredFieldHasLabel(t *testing.T) {
	c := MustLoadCatalog()
	en := c.Labels.For(DefaultLanguage)
	for _, st := range c.Gate.Steps() {
		for _, name := range st.Required {
			if en.Label(name) == "" {
				t.Errorf("step %s: no label for %s", st.Key, name)
			}
		}
	}
}

func TestCatalog_LanguageFallback(t *testing.T) {
	c := MustLoadCatalog()
	cy := c.Labels.For("cy")
	if got := cy.Label("risk_details"); got != "Manylion" {
		t.Errorf("expected Welsh label, got %q", got)
	}
	if got := cy.Label("other_hazards"); got != "Other Hazards" {
		t.Errorf("expected English fallback, got %q", got)
	}
	if got := c.Labels.For("fr-FR").Label("risk_details"); got != "Details" {
		t.Errorf("expected default language, got %q", got)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown required", "steps:\n  - key: a\n    required: [ghost]\nlabels:\n  en-GB: {}\n", "ghost"},
		{"no default labels", "steps:\n  - key: a\nlabels:\n  cy: {}\n", "en-GB"},
		{"unknown label", "steps:\n  - key: a\nlabels:\n  en-GB:\n    ghost: Ghost\n", "ghost"},
		{"bad yaml", "steps: [", "parse catalog"},
	}
	for _, tt := range tests {
		_, err := parseCatalog([]byte(tt.raw))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}
