package textproc

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Placeholders that always have a spoken fallback so prompts never read a
// raw template marker to the caller.
var defaults = map[string]string{
	"driver_name":  "driver",
	"load_number":  "your load",
	"origin":       "the origin",
	"destination":  "the destination",
	"expected_eta": "the expected time",
}

// FillTemplate substitutes {{name}} placeholders in text with values from
// vars. Unknown placeholders fall back to a generic spoken default when
// one exists, otherwise they collapse to the empty string. A raw {{...}}
// marker never survives substitution.
func FillTemplate(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return defaults[name]
	})
}

// PlaceholderNames returns the distinct placeholder names in text, in
// first-appearance order.
func PlaceholderNames(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
