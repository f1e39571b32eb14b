package wizard

import (
	"sync"

	"golang.org/x/text/language"
)

// Labels is a fixed field-name to label table.
type Labels map[string]string

func (l Labels) Label(field string) string { return l[field] }

// Catalog holds label tables per language and picks the best match for a
// client's preferences. The first language added is the fallback.
type Catalog struct {
	mu      sync.RWMutex
	tags    []language.Tag
	tables  []Labels
	matcher language.Matcher
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add registers labels for tag, merging into an existing table.
func (c *Catalog) Add(tag language.Tag, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tags {
		if t == tag {
			for k, v := range labels {
				c.tables[i][k] = v
			}
			return
		}
	}
	table := make(Labels, len(labels))
	for k, v := range labels {
		table[k] = v
	}
	c.tags = append(c.tags, tag)
	c.tables = append(c.tables, table)
	c.matcher = language.NewMatcher(c.tags)
}

// For returns a Labeler for an Accept-Language style preference list. Labels
// missing from the matched language fall back to the default language.
func (c *Catalog) For(acceptLanguage string) Labeler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tables) == 0 {
		return Labels(nil)
	}
	fallback := c.tables[0]
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return fallback
	}
	_, idx, conf := c.matcher.Match(prefs...)
	if conf == language.No || idx == 0 {
		return fallback
	}
	return layered{primary: c.tables[idx], fallback: fallback}
}

type layered struct {
	primary, fallback Labels
}

func (l layered) Label(field string) string {
	if s := l.primary[field]; s != "" {
		return s
	}
	return l.fallback[field]
}
