package val

import (
	"fmt"
	"regexp"
	"strings"
)

// FmtSpec is a parsed key pattern.
// Patterns use {field} syntax for field references:
//   - "METADATA"              → constant string
//   - "{createdAt}"           → single field reference
//   - "RECIPE#{id}"           → composite with field
//   - "USER#{userId}#MEALPLAN" → field between literals
type FmtSpec struct {
	raw   string
	parts []specPart
}

type specPart struct {
	literal bool
	value   string
}

// fieldRefRegex matches {fieldName} patterns, including empty braces so they can be rejected.
var fieldRefRegex = regexp.MustCompile(`\{([^}]*)\}`)

// Fmt creates a ValDef from a format pattern. Panics if the pattern is invalid.
//
//	val.Fmt("RECIPE#{id}")
//	val.Fmt("METADATA")
//	val.Fmt("{createdAt}#{id}")
func Fmt(pattern string) ValDef {
	s, err := parseFmtSpec(pattern)
	if err != nil {
		panic(fmt.Sprintf("val.Fmt: %v", err))
	}
	return ValDef{Format: &s}
}

// FromField creates a ValDef that copies a field value verbatim.
func FromField(field string) ValDef {
	return ValDef{FromField: field}
}

func parseFmtSpec(raw string) (FmtSpec, error) {
	if raw == "" {
		return FmtSpec{}, fmt.Errorf("pattern cannot be empty")
	}

	s := FmtSpec{raw: raw}
	matches := fieldRefRegex.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		s.parts = []specPart{{literal: true, value: raw}}
		return s, nil
	}

	lastEnd := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		fieldStart, fieldEnd := match[2], match[3]

		if start > lastEnd {
			s.parts = append(s.parts, specPart{literal: true, value: raw[lastEnd:start]})
		}

		ref := raw[fieldStart:fieldEnd]
		if strings.TrimSpace(ref) == "" {
			return FmtSpec{}, fmt.Errorf("empty field reference at position %d", start)
		}
		if strings.ContainsAny(ref, "{# ") {
			return FmtSpec{}, fmt.Errorf("invalid field reference %q", ref)
		}
		s.parts = append(s.parts, specPart{value: ref})
		lastEnd = end
	}

	if lastEnd < len(raw) {
		s.parts = append(s.parts, specPart{literal: true, value: raw[lastEnd:]})
	}
	return s, nil
}

// String returns the raw pattern string.
func (s FmtSpec) String() string {
	return s.raw
}

// IsConstant returns true if this spec has no field references.
func (s FmtSpec) IsConstant() bool {
	return len(s.parts) == 1 && s.parts[0].literal
}

// FieldRefs returns all field references in the pattern, in order.
func (s FmtSpec) FieldRefs() []string {
	var refs []string
	for _, part := range s.parts {
		if !part.literal {
			refs = append(refs, part.value)
		}
	}
	return refs
}

// Render substitutes the field references with values from fields.
// ok is false when any referenced field is missing or empty, which means
// the key must not be written (sparse index).
func (s FmtSpec) Render(fields map[string]string) (string, bool) {
	var b strings.Builder
	for _, part := range s.parts {
		if part.literal {
			b.WriteString(part.value)
			continue
		}
		v := fields[part.value]
		if v == "" {
			return "", false
		}
		b.WriteString(v)
	}
	return b.String(), true
}

// Prefix renders the pattern up to the first field reference that has no
// value in fields. It is used to build begins_with conditions.
func (s FmtSpec) Prefix(fields map[string]string) string {
	var b strings.Builder
	for _, part := range s.parts {
		if part.literal {
			b.WriteString(part.value)
			continue
		}
		v := fields[part.value]
		if v == "" {
			break
		}
		b.WriteString(v)
	}
	return b.String()
}
