package expr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type updateAction struct {
	kind  string // SET, REMOVE, ADD, DELETE
	path  Path
	value valueExpr
}

type valueExpr interface {
	eval(doc map[string]types.AttributeValue) (types.AttributeValue, error)
}

// ApplyUpdate evaluates an update expression against item and returns the
// updated copy. item may be nil when the update creates the item.
// Right-hand sides see the item as it was before the update.
func ApplyUpdate(src string, in Input, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	p, err := newParser(src, in)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	actions, err := p.update()
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	before := item
	out := Clone(item)
	if out == nil {
		out = make(map[string]types.AttributeValue)
	}
	type pending struct {
		a updateAction
		v types.AttributeValue
	}
	var resolved []pending
	for _, a := range actions {
		var v types.AttributeValue
		if a.value != nil {
			v, err = a.value.eval(before)
			if err != nil {
				return nil, fmt.Errorf("update %s %s: %w", a.kind, a.path, err)
			}
		}
		resolved = append(resolved, pending{a, v})
	}
	for _, r := range resolved {
		switch r.a.kind {
		case "SET":
			err = r.a.path.set(out, r.v)
		case "REMOVE":
			r.a.path.remove(out)
		case "ADD":
			err = add(out, r.a.path, r.v)
		case "DELETE":
			err = deleteFromSet(out, r.a.path, r.v)
		}
		if err != nil {
			return nil, fmt.Errorf("update %s %s: %w", r.a.kind, r.a.path, err)
		}
	}
	return out, nil
}

func (p *parser) update() ([]updateAction, error) {
	var actions []updateAction
	seen := make(map[string]bool)
	for p.peek().kind != tokEOF {
		t := p.next()
		kind := strings.ToUpper(t.text)
		if t.kind != tokIdent || (kind != "SET" && kind != "REMOVE" && kind != "ADD" && kind != "DELETE") {
			return nil, fmt.Errorf("expected SET, REMOVE, ADD or DELETE, got %s", t)
		}
		if seen[kind] {
			return nil, fmt.Errorf("clause %s appears more than once", kind)
		}
		seen[kind] = true
		for {
			path, err := p.path()
			if err != nil {
				return nil, err
			}
			a := updateAction{kind: kind, path: path}
			switch kind {
			case "SET":
				if _, err := p.expect(tokEq, "="); err != nil {
					return nil, err
				}
				a.value, err = p.setValue()
			case "ADD", "DELETE":
				var o operand
				o, err = p.operand()
				a.value = operandValue{o}
			}
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("empty update expression")
	}
	return actions, nil
}

func (p *parser) setValue() (valueExpr, error) {
	left, err := p.setTerm()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokPlus, tokMinus:
		op := p.next().kind
		right, err := p.setTerm()
		if err != nil {
			return nil, err
		}
		return arith{op: op, l: left, r: right}, nil
	}
	return left, nil
}

func (p *parser) setTerm() (valueExpr, error) {
	t := p.peek()
	if t.kind == tokIdent && p.toks[p.pos+1].kind == tokLParen {
		switch strings.ToLower(t.text) {
		case "if_not_exists":
			p.next()
			p.next()
			path, err := p.path()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
			def, err := p.setTerm()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return ifNotExists{path: path, def: def}, nil
		case "list_append":
			p.next()
			p.next()
			a, err := p.setTerm()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
			b, err := p.setTerm()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return listAppend{a, b}, nil
		}
	}
	o, err := p.operand()
	if err != nil {
		return nil, err
	}
	return operandValue{o}, nil
}

type operandValue struct{ o operand }

func (v operandValue) eval(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	av, ok := v.o.value(doc)
	if !ok {
		return nil, fmt.Errorf("operand does not exist in the item")
	}
	return cloneValue(av), nil
}

type ifNotExists struct {
	path Path
	def  valueExpr
}

func (v ifNotExists) eval(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	if av, ok := v.path.resolve(doc); ok {
		return cloneValue(av), nil
	}
	return v.def.eval(doc)
}

type listAppend struct{ a, b valueExpr }

func (v listAppend) eval(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	a, err := v.a.eval(doc)
	if err != nil {
		return nil, err
	}
	b, err := v.b.eval(doc)
	if err != nil {
		return nil, err
	}
	la, ok1 := a.(*types.AttributeValueMemberL)
	lb, ok2 := b.(*types.AttributeValueMemberL)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("list_append requires two lists")
	}
	out := append(append([]types.AttributeValue{}, la.Value...), lb.Value...)
	return &types.AttributeValueMemberL{Value: out}, nil
}

type arith struct {
	op   tokenKind
	l, r valueExpr
}

func (v arith) eval(doc map[string]types.AttributeValue) (types.AttributeValue, error) {
	a, err := v.l.eval(doc)
	if err != nil {
		return nil, err
	}
	b, err := v.r.eval(doc)
	if err != nil {
		return nil, err
	}
	na, ok1 := a.(*types.AttributeValueMemberN)
	nb, ok2 := b.(*types.AttributeValueMemberN)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("arithmetic requires numbers")
	}
	x, err := parseNumber(na.Value)
	if err != nil {
		return nil, err
	}
	y, err := parseNumber(nb.Value)
	if err != nil {
		return nil, err
	}
	if v.op == tokPlus {
		x.Add(x, y)
	} else {
		x.Sub(x, y)
	}
	return &types.AttributeValueMemberN{Value: formatNumber(x)}, nil
}

func add(doc map[string]types.AttributeValue, path Path, v types.AttributeValue) error {
	cur, ok := path.resolve(doc)
	if !ok {
		return path.set(doc, v)
	}
	switch c := cur.(type) {
	case *types.AttributeValueMemberN:
		n, ok := v.(*types.AttributeValueMemberN)
		if !ok {
			return fmt.Errorf("ADD to a number requires a number")
		}
		x, err := parseNumber(c.Value)
		if err != nil {
			return err
		}
		y, err := parseNumber(n.Value)
		if err != nil {
			return err
		}
		return path.set(doc, &types.AttributeValueMemberN{Value: formatNumber(x.Add(x, y))})
	case *types.AttributeValueMemberSS:
		s, ok := v.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("ADD to a string set requires a string set")
		}
		return path.set(doc, &types.AttributeValueMemberSS{Value: union(c.Value, s.Value)})
	case *types.AttributeValueMemberNS:
		s, ok := v.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("ADD to a number set requires a number set")
		}
		return path.set(doc, &types.AttributeValueMemberNS{Value: union(c.Value, s.Value)})
	}
	return fmt.Errorf("ADD is only supported on numbers and sets")
}

func deleteFromSet(doc map[string]types.AttributeValue, path Path, v types.AttributeValue) error {
	cur, ok := path.resolve(doc)
	if !ok {
		return nil
	}
	var remaining []string
	switch c := cur.(type) {
	case *types.AttributeValueMemberSS:
		s, ok := v.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("DELETE from a string set requires a string set")
		}
		remaining = difference(c.Value, s.Value)
		if len(remaining) > 0 {
			return path.set(doc, &types.AttributeValueMemberSS{Value: remaining})
		}
	case *types.AttributeValueMemberNS:
		s, ok := v.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("DELETE from a number set requires a number set")
		}
		remaining = difference(c.Value, s.Value)
		if len(remaining) > 0 {
			return path.set(doc, &types.AttributeValueMemberNS{Value: remaining})
		}
	default:
		return fmt.Errorf("DELETE is only supported on sets")
	}
	// empty sets are not representable
	path.remove(doc)
	return nil
}

func union(a, b []string) []string {
	out := append([]string{}, a...)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func difference(a, b []string) []string {
	var out []string
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
