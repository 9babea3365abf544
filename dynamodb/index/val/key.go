package val

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/constraints"
)

// ValDef defines how to derive a key value from an entity's index fields.
// Exactly one of Format, FromField, or Const should be set.
type ValDef struct {
	Format    *FmtSpec
	FromField string
	Const     *ConstValue
}

// Ptr returns a pointer to a copy of this ValDef.
// Useful for optional sort keys.
func (v ValDef) Ptr() *ValDef {
	return &v
}

// HasValueSource returns true if the ValDef has a value source defined.
func (v ValDef) HasValueSource() bool {
	return v.Format != nil || v.FromField != "" || v.Const != nil
}

// IsZero returns true if this is a zero-value (uninitialized) ValDef.
func (v ValDef) IsZero() bool {
	return !v.HasValueSource()
}

// Render derives the key value. ok is false when a source field is missing.
func (v ValDef) Render(fields map[string]string) (string, bool) {
	switch {
	case v.Format != nil:
		return v.Format.Render(fields)
	case v.FromField != "":
		s := fields[v.FromField]
		return s, s != ""
	case v.Const != nil:
		return v.Const.String(), true
	}
	return "", false
}

// ConstValue represents a constant key value.
type ConstValue struct {
	value any
}

// Value returns the constant value.
func (c *ConstValue) Value() any {
	return c.value
}

func (c *ConstValue) String() string {
	switch v := c.value.(type) {
	case string:
		return v
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// String creates a ValDef with a constant string value.
func String(v string) ValDef {
	return ValDef{Const: &ConstValue{value: v}}
}

// Numeric is a constraint for all numeric types.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// Number creates a ValDef with a constant numeric value rendered in decimal.
func Number[T Numeric](v T) ValDef {
	return ValDef{Const: &ConstValue{value: v}}
}
