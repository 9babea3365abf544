package quantity

import "strings"

// countable units are counted rather than measured, so "2 pinch" reads
// wrong and gets pluralized.
var countable = map[string]string{
	"pinch":   "pinches",
	"dash":    "dashes",
	"clove":   "cloves",
	"sprig":   "sprigs",
	"handful": "handfuls",
	"slice":   "slices",
	"can":     "cans",
	"piece":   "pieces",
	"bunch":   "bunches",
	"stalk":   "stalks",
	"head":    "heads",
	"leaf":    "leaves",
	"stick":   "sticks",
	"sheet":   "sheets",
	"drop":    "drops",
	"packet":  "packets",
	"jar":     "jars",
}

var plurals = func() map[string]bool {
	m := make(map[string]bool, len(countable))
	for _, p := range countable {
		m[p] = true
	}
	return m
}()

func isCountableUnit(word string) bool {
	w := strings.ToLower(word)
	_, ok := countable[w]
	return ok || plurals[w]
}

// pluralize returns the plural of a countable unit, keeping a leading
// capital. Words already plural are returned as they are.
func pluralize(word string) string {
	p, ok := countable[strings.ToLower(word)]
	if !ok {
		return word
	}
	if word != "" && word[0] >= 'A' && word[0] <= 'Z' {
		p = strings.ToUpper(p[:1]) + p[1:]
	}
	return p
}

// pluralizeLeadingUnit pluralizes the first word of rest, the text after a
// number, if it is a countable unit.
func pluralizeLeadingUnit(rest string) string {
	trimmed := strings.TrimLeft(rest, " ")
	if trimmed == "" {
		return rest
	}
	lead := rest[:len(rest)-len(trimmed)]
	word, tail, hasTail := strings.Cut(trimmed, " ")
	if !isCountableUnit(word) {
		return rest
	}
	out := lead + pluralize(word)
	if hasTail {
		out += " " + tail
	}
	return out
}
