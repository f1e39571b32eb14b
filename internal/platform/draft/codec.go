package draft

import (
	"strings"
	"unicode/utf8"

	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/goccy/go-json"
)

const (
	previewMarker   = "_preview"
	previewLimit    = 100000
	previewKeep     = 50000
	truncatedSuffix = "...[truncated]"
)

// encode renders m as the persisted document. Live resources become
// descriptors and oversized previews are truncated. With dropPreviews every
// preview field is omitted.
func encode(m formstate.FieldMap, dropPreviews bool) ([]byte, error) {
	doc := make(map[string]any, len(m))
	for k, v := range m {
		if isPreview(k) {
			if dropPreviews {
				continue
			}
			if s, ok := v.(string); ok {
				v = truncatePreview(s)
			}
		}
		if r, ok := v.(*formstate.Resource); ok {
			if r == nil {
				v = nil
			} else {
				v = r.Descriptor()
			}
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}

func decode(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isPreview(name string) bool {
	return strings.Contains(name, previewMarker)
}

func hasPreviews(m formstate.FieldMap) bool {
	for k := range m {
		if isPreview(k) {
			return true
		}
	}
	return false
}

func truncatePreview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	cut := previewKeep
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
