// Package quantity parses free-form ingredient quantities ("1 1/2", "¾",
// "2-3", "a", "500g") and rescales them for a different number of servings.
package quantity

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Parsed is a quantity whose leading number, or range of numbers, was
// understood. Rest is everything after the number, including the
// whitespace separating it, e.g. " cups" or "g".
type Parsed struct {
	Min     float64
	Max     float64
	IsRange bool
	Rest    string
}

// Value returns the number of a single (non-range) quantity.
func (p Parsed) Value() (float64, bool) {
	return p.Min, !p.IsRange
}

// String renders the quantity with both numbers rounded to 2 decimals.
func (p Parsed) String() string {
	if p.IsRange {
		return Format(p.Min) + "-" + Format(p.Max) + p.Rest
	}
	return Format(p.Min) + p.Rest
}

// Unit returns the trailing text without surrounding whitespace.
func (p Parsed) Unit() string {
	return strings.TrimSpace(p.Rest)
}

const number = `\d+\s+\d+/\d+|\d+/\d+|\d*\.\d+|\d+`

var (
	rangeRe   = regexp.MustCompile(`^(` + number + `)(?:\s*[-–]\s*|\s+to\s+)(` + number + `)`)
	singleRe  = regexp.MustCompile(`^(` + number + `)`)
	articleRe = regexp.MustCompile(`(?i)^an?(\s+|$)`)
)

var vulgarFractions = map[rune]string{
	'½': "1/2",
	'⅓': "1/3",
	'⅔': "2/3",
	'¼': "1/4",
	'¾': "3/4",
	'⅕': "1/5",
	'⅖': "2/5",
	'⅗': "3/5",
	'⅘': "4/5",
	'⅙': "1/6",
	'⅚': "5/6",
	'⅛': "1/8",
	'⅜': "3/8",
	'⅝': "5/8",
	'⅞': "7/8",
}

// normalize trims q, turns a leading article into "1" and expands unicode
// fractions. A fraction directly after a digit forms a mixed number.
func normalize(q string) string {
	q = strings.TrimSpace(q)
	if loc := articleRe.FindStringSubmatchIndex(q); loc != nil {
		sep := q[loc[2]:loc[3]]
		if sep == "" {
			sep = " "
		}
		q = strings.TrimRight("1"+sep+q[loc[1]:], " ")
	}
	if !strings.ContainsFunc(q, isVulgarFraction) {
		return q
	}
	var b strings.Builder
	var prev rune
	for _, r := range q {
		if f, ok := vulgarFractions[r]; ok {
			if prev >= '0' && prev <= '9' {
				b.WriteByte(' ')
			}
			b.WriteString(f)
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func isVulgarFraction(r rune) bool {
	_, ok := vulgarFractions[r]
	return ok
}

// parseNumber reads one matched number: an integer, a decimal, a fraction
// or a mixed number.
func parseNumber(s string) (float64, bool) {
	whole := 0.0
	if fields := strings.Fields(s); len(fields) == 2 {
		w, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		whole, s = w, fields[1]
	}
	num, den, isFraction := strings.Cut(s, "/")
	if !isFraction {
		v, err := strconv.ParseFloat(s, 64)
		return whole + v, err == nil
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return whole + n/d, true
}

// Parse reads the leading number or range of q. It tries a range first,
// then a single mixed number, fraction, decimal or integer. The range goes
// first so that its ends may be fractions: "1/2-1" is the range 1/2 to 1,
// not the fraction 1/2 followed by the text "-1".
func Parse(q string) (Parsed, bool) {
	q = normalize(q)
	if m := rangeRe.FindStringSubmatchIndex(q); m != nil {
		lo, ok1 := parseNumber(q[m[2]:m[3]])
		hi, ok2 := parseNumber(q[m[4]:m[5]])
		if ok1 && ok2 {
			return Parsed{Min: lo, Max: hi, IsRange: true, Rest: q[m[1]:]}, true
		}
		return Parsed{}, false
	}
	if m := singleRe.FindStringSubmatchIndex(q); m != nil {
		v, ok := parseNumber(q[m[2]:m[3]])
		if !ok {
			return Parsed{}, false
		}
		return Parsed{Min: v, Max: v, Rest: q[m[1]:]}, true
	}
	return Parsed{}, false
}

// Round rounds v to 2 decimal places.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// Format renders v rounded to 2 decimals without trailing zeros:
// 3, 1.5, 0.33.
func Format(v float64) string {
	v = Round(v)
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Scale multiplies the quantity q by factor.
//
// A factor of exactly 1 returns q unchanged, whatever it contains. A
// non-positive or non-finite factor also leaves q unchanged. An empty q
// means "1". Ranges are scaled at both ends and never collapsed. Text with
// no number is left alone, except a known countable unit ("pinch",
// "clove") scaled by a whole factor, which becomes "2 pinches".
func Scale(q string, factor float64) string {
	if factor == 1 {
		return q
	}
	if factor <= 0 || math.IsInf(factor, 0) || math.IsNaN(factor) {
		return q
	}
	if strings.TrimSpace(q) == "" {
		q = "1"
	}
	if p, ok := Parse(q); ok {
		p.Min, p.Max = Round(p.Min*factor), Round(p.Max*factor)
		if p.Max > 1 {
			p.Rest = pluralizeLeadingUnit(p.Rest)
		}
		return p.String()
	}
	if factor != math.Trunc(factor) {
		return q
	}
	text := strings.TrimSpace(q)
	word, tail, _ := strings.Cut(text, " ")
	if !isCountableUnit(word) {
		return q
	}
	scaled := strconv.FormatFloat(factor, 'f', -1, 64) + " " + pluralize(word)
	if tail != "" {
		scaled += " " + tail
	}
	return scaled
}
