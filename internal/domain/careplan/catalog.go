package careplan

import (
	_ "embed"
	"fmt"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ehr/carewizard/internal/platform/wizard"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Steps  []wizard.Step                `yaml:"steps"`
	Labels map[string]map[string]string `yaml:"labels"`
}

// DefaultLanguage is the label fallback.
const DefaultLanguage = "en-GB"

// Catalog is the care plan wizard definition: its gate and label tables.
type Catalog struct {
	Gate   *wizard.Gate
	Labels *wizard.Catalog
}

// LoadCatalog parses the embedded step and label catalog against Schema.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	gate, err := wizard.NewGate(Schema, f.Steps)
	if err != nil {
		return nil, fmt.Errorf("build gate: %w", err)
	}

	labels := wizard.NewCatalog()
	def, ok := f.Labels[DefaultLanguage]
	if !ok {
		return nil, fmt.Errorf("catalog has no %s labels", DefaultLanguage)
	}
	labels.Add(language.MustParse(DefaultLanguage), def)
	for tag, table := range f.Labels {
		if tag == DefaultLanguage {
			continue
		}
		t, err := language.Parse(tag)
		if err != nil {
			return nil, fmt.Errorf("catalog language %q: %w", tag, err)
		}
		for name := range table {
			if !Schema.Has(name) {
				return nil, fmt.Errorf("catalog %s: label for unknown field %s", tag, name)
			}
		}
		labels.Add(t, table)
	}
	for name := range def {
		if !Schema.Has(name) {
			return nil, fmt.Errorf("catalog %s: label for unknown field %s", DefaultLanguage, name)
		}
	}
	return &Catalog{Gate: gate, Labels: labels}, nil
}

// MustLoadCatalog panics on an invalid embedded catalog.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}
