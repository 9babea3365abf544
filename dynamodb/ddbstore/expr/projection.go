package expr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ParseProjection parses a comma separated list of document paths.
func ParseProjection(src string, in Input) ([]Path, error) {
	p, err := newParser(src, in)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	var paths []Path
	for {
		path, err := p.path()
		if err != nil {
			return nil, fmt.Errorf("projection: %w", err)
		}
		paths = append(paths, path)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("projection: unexpected %s", t)
	}
	return paths, nil
}

// Project returns a copy of item holding only the given paths. Nested paths
// keep their enclosing maps and lists. No paths means the whole item.
func Project(item map[string]types.AttributeValue, paths []Path) map[string]types.AttributeValue {
	if len(paths) == 0 || item == nil {
		return Clone(item)
	}
	out := make(map[string]types.AttributeValue)
	for _, p := range paths {
		v, ok := item[p[0].name]
		if !ok {
			continue
		}
		if len(p) == 1 {
			out[p[0].name] = cloneValue(v)
			continue
		}
		if r := projectValue(out[p[0].name], v, p[1:]); r != nil {
			out[p[0].name] = r
		}
	}
	return out
}

func projectValue(dst, src types.AttributeValue, p Path) types.AttributeValue {
	e := p[0]
	switch s := src.(type) {
	case *types.AttributeValueMemberM:
		inner, ok := s.Value[e.name]
		if e.name == "" || !ok {
			return dst
		}
		d, _ := dst.(*types.AttributeValueMemberM)
		if d == nil {
			d = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}}
		}
		if len(p) == 1 {
			d.Value[e.name] = cloneValue(inner)
		} else if r := projectValue(d.Value[e.name], inner, p[1:]); r != nil {
			d.Value[e.name] = r
		}
		return d
	case *types.AttributeValueMemberL:
		if e.name != "" || e.index < 0 || e.index >= len(s.Value) {
			return dst
		}
		d, _ := dst.(*types.AttributeValueMemberL)
		if d == nil {
			d = &types.AttributeValueMemberL{}
		}
		if len(p) == 1 {
			d.Value = append(d.Value, cloneValue(s.Value[e.index]))
		} else if r := projectValue(nil, s.Value[e.index], p[1:]); r != nil {
			d.Value = append(d.Value, r)
		}
		return d
	}
	return dst
}
