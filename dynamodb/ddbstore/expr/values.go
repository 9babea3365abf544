package expr

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Input carries the placeholder maps of a request.
type Input struct {
	Names  map[string]string
	Values map[string]types.AttributeValue
}

type pathElem struct {
	name  string
	index int // list index when name is empty
}

// Path is a document path such as a.b[1].
type Path []pathElem

func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		if e.name == "" {
			fmt.Fprintf(&b, "[%d]", e.index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.name)
	}
	return b.String()
}

// resolve walks the path through doc.
func (p Path) resolve(doc map[string]types.AttributeValue) (types.AttributeValue, bool) {
	if len(p) == 0 || p[0].name == "" {
		return nil, false
	}
	cur, ok := doc[p[0].name]
	if !ok {
		return nil, false
	}
	for _, e := range p[1:] {
		switch v := cur.(type) {
		case *types.AttributeValueMemberM:
			if e.name == "" {
				return nil, false
			}
			cur, ok = v.Value[e.name]
			if !ok {
				return nil, false
			}
		case *types.AttributeValueMemberL:
			if e.name != "" || e.index < 0 || e.index >= len(v.Value) {
				return nil, false
			}
			cur = v.Value[e.index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// set writes v at the path. Intermediate containers must exist.
func (p Path) set(doc map[string]types.AttributeValue, v types.AttributeValue) error {
	if len(p) == 1 {
		doc[p[0].name] = v
		return nil
	}
	parent, ok := p[:len(p)-1].resolve(doc)
	if !ok {
		return fmt.Errorf("document path %s does not exist", p[:len(p)-1])
	}
	last := p[len(p)-1]
	switch c := parent.(type) {
	case *types.AttributeValueMemberM:
		if last.name == "" {
			return fmt.Errorf("cannot index map %s", p[:len(p)-1])
		}
		c.Value[last.name] = v
	case *types.AttributeValueMemberL:
		if last.name != "" {
			return fmt.Errorf("cannot use name on list %s", p[:len(p)-1])
		}
		if last.index >= len(c.Value) {
			c.Value = append(c.Value, v)
		} else {
			c.Value[last.index] = v
		}
	default:
		return fmt.Errorf("document path %s is not a container", p[:len(p)-1])
	}
	return nil
}

func (p Path) remove(doc map[string]types.AttributeValue) {
	if len(p) == 1 {
		delete(doc, p[0].name)
		return
	}
	parent, ok := p[:len(p)-1].resolve(doc)
	if !ok {
		return
	}
	last := p[len(p)-1]
	switch c := parent.(type) {
	case *types.AttributeValueMemberM:
		delete(c.Value, last.name)
	case *types.AttributeValueMemberL:
		if last.name == "" && last.index < len(c.Value) {
			c.Value = append(c.Value[:last.index], c.Value[last.index+1:]...)
		}
	}
}

func parseNumber(s string) (*big.Float, error) {
	f, _, err := big.ParseFloat(s, 10, 128, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}

func formatNumber(f *big.Float) string {
	if f.IsInt() {
		i, _ := f.Int(nil)
		return i.String()
	}
	return f.Text('g', -1)
}

// compare orders two scalars of the same type. ok is false when they are
// not comparable.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(av.Value, bv.Value), true
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, err1 := parseNumber(av.Value)
			y, err2 := parseNumber(bv.Value)
			if err1 != nil || err2 != nil {
				return 0, false
			}
			return x.Cmp(y), true
		}
	case *types.AttributeValueMemberB:
		if bv, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(av.Value, bv.Value), true
		}
	}
	return 0, false
}

// Equal reports deep equality of two attribute values.
func Equal(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return ok
	case *types.AttributeValueMemberSS:
		bv, ok := b.(*types.AttributeValueMemberSS)
		return ok && sameStringSet(av.Value, bv.Value)
	case *types.AttributeValueMemberNS:
		bv, ok := b.(*types.AttributeValueMemberNS)
		return ok && sameStringSet(av.Value, bv.Value)
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for i := range av.Value {
			if !Equal(av.Value[i], bv.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for k, v := range av.Value {
			if !Equal(v, bv.Value[k]) {
				return false
			}
		}
		return true
	}
	return false
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

func typeName(v types.AttributeValue) string {
	switch v.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	}
	return ""
}

// Clone deep-copies an item so updates never alias stored state.
func Clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v types.AttributeValue) types.AttributeValue {
	switch av := v.(type) {
	case *types.AttributeValueMemberM:
		m := Clone(av.Value)
		if m == nil {
			m = map[string]types.AttributeValue{}
		}
		return &types.AttributeValueMemberM{Value: m}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(av.Value))
		for i, e := range av.Value {
			l[i] = cloneValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), av.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), av.Value...)}
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), av.Value...)}
	}
	return v
}
