package careplan

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ehr/carewizard/internal/platform/formstate"
)

// isoLayout is the wire format of every instant in a payload.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Care type enum values accepted by the care plan backend.
const (
	CareTypeSingleHanded = "SINGLE_HANDED_CALL"
	CareTypeDoubleHanded = "DOUBLE_HANDED_CALL"
	CareTypeSpecialCare  = "SPECIALCARE"
)

var (
	separatorRun = regexp.MustCompile(`[- ]+`)
	nonEnumChars = regexp.MustCompile(`[^A-Z0-9_]`)
	wallClock    = regexp.MustCompile(`^(\d{2}):(\d{2})$`)
	bareDate     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// NormalizeCareType maps a free-form care type selection to its enum value.
// Array values use their first member.
func NormalizeCareType(raw any) (string, bool) {
	if l, ok := raw.([]any); ok {
		if len(l) == 0 {
			return "", false
		}
		raw = l[0]
	}
	v := strings.ToUpper(strings.TrimSpace(formstate.AsString(raw)))
	if v == "" {
		return "", false
	}
	v = separatorRun.ReplaceAllString(v, "_")
	v = nonEnumChars.ReplaceAllString(v, "")

	switch {
	case v == "S" || strings.HasPrefix(v, "SINGLE") || strings.Contains(v, "PERSONAL"):
		return CareTypeSingleHanded, true
	case v == "D" || strings.HasPrefix(v, "DOUBLE"):
		return CareTypeDoubleHanded, true
	case strings.HasPrefix(v, "SPECIAL") || strings.Contains(v, "SPECIALCARE") || strings.Contains(v, "SPECIAL_CARE"):
		return CareTypeSpecialCare, true
	}
	return "", false
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate converts a date as typed into the form. Three dash-separated
// parts are read as YYYY-MM-DD when the first part has four digits and as
// MM-DD-YYYY otherwise; anything else must be an ISO 8601 timestamp.
// Dates without a zone are taken in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if parts := strings.Split(s, "-"); len(parts) == 3 {
		layout := "01-02-2006"
		if len(parts[0]) == 4 {
			layout = "2006-01-02"
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return parseISO(s, loc)
}

func parseISO(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// slotInstant resolves a schedule slot time. HH:MM is that wall time today
// in loc.
func slotInstant(v any, now time.Time, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(formstate.AsString(v))
	if m := wallClock.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return time.Time{}, false
		}
		today := now.In(loc)
		return time.Date(today.Year(), today.Month(), today.Day(), hh, mm, 0, 0, loc), true
	}
	return ParseDate(s, loc)
}

// FirstObservedInstant normalizes the wound observation date. Values with a
// time part keep their instant; date-only values land on 08:00 UTC.
func FirstObservedInstant(v any, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(formstate.AsString(v))
	if s == "" {
		return time.Time{}, false
	}
	if strings.Contains(s, "T") {
		return parseISO(s, loc)
	}
	if m := bareDate.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 8, 0, 0, 0, time.UTC), true
	}
	t, ok := ParseDate(s, loc)
	if !ok {
		return time.Time{}, false
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 8, 0, 0, 0, time.UTC), true
}

// splitList accepts an array field or a comma-separated string.
func splitList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			raw = append(raw, formstate.AsString(e))
		}
	case string:
		raw = strings.Split(t, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinList(v any) string {
	if _, ok := v.([]any); ok {
		return strings.Join(splitList(v), ", ")
	}
	return formstate.AsString(v)
}

// affirmative reads yes/no answers. Radio groups store "yes"/"Yes",
// checkbox groups store ["yes"], toggles store true.
func affirmative(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "yes")
	case []any:
		for _, e := range t {
			if affirmative(e) {
				return true
			}
		}
	}
	return false
}

func first(v any) string {
	if l, ok := v.([]any); ok && len(l) > 0 {
		return formstate.AsString(l[0])
	}
	return ""
}

// number mirrors Number(): blank is 0, unparseable is nil.
func number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case nil:
	default:
		s := strings.TrimSpace(formstate.AsString(t))
		if s != "" {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			f = n
		}
	}
	return &f
}

func firstNonBlank(vals ...string) string {
	for _, s := range vals {
		if !formstate.IsBlank(s) {
			return s
		}
	}
	return ""
}

// textCleaner strips markup from operator-typed text.
type textCleaner struct {
	policy *bluemonday.Policy
}

func newTextCleaner() textCleaner {
	return textCleaner{policy: bluemonday.StrictPolicy()}
}

func (c textCleaner) clean(s string) string {
	if s == "" || !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(c.policy.Sanitize(s))
}

func (c textCleaner) list(in []string) []string {
	for i, s := range in {
		in[i] = c.clean(s)
	}
	return in
}
