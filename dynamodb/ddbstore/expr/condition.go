package expr

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a parsed condition, filter or key condition expression.
type Condition struct {
	root condNode
}

type condNode interface {
	eval(doc map[string]types.AttributeValue) bool
}

type operand interface {
	value(doc map[string]types.AttributeValue) (types.AttributeValue, bool)
}

// ParseCondition parses a condition expression.
func ParseCondition(src string, in Input) (Condition, error) {
	p, err := newParser(src, in)
	if err != nil {
		return Condition{}, fmt.Errorf("condition: %w", err)
	}
	root, err := p.condition()
	if err != nil {
		return Condition{}, fmt.Errorf("condition: %w", err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return Condition{}, fmt.Errorf("condition: unexpected %s", t)
	}
	return Condition{root: root}, nil
}

// Eval evaluates the condition against doc. A nil doc is an absent item.
func (c Condition) Eval(doc map[string]types.AttributeValue) bool {
	if c.root == nil {
		return true
	}
	return c.root.eval(doc)
}

// EvalCondition parses and evaluates src in one step.
func EvalCondition(src string, in Input, doc map[string]types.AttributeValue) (bool, error) {
	c, err := ParseCondition(src, in)
	if err != nil {
		return false, err
	}
	return c.Eval(doc), nil
}

func (p *parser) condition() (condNode, error) {
	left, err := p.andCondition()
	if err != nil {
		return nil, err
	}
	for p.peek().is("OR") {
		p.next()
		right, err := p.andCondition()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) andCondition() (condNode, error) {
	left, err := p.notCondition()
	if err != nil {
		return nil, err
	}
	for p.peek().is("AND") {
		p.next()
		right, err := p.notCondition()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) notCondition() (condNode, error) {
	if p.peek().is("NOT") {
		p.next()
		inner, err := p.notCondition()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.primaryCondition()
}

func (p *parser) primaryCondition() (condNode, error) {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		inner, err := p.condition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if t.kind == tokIdent && p.toks[p.pos+1].kind == tokLParen {
		switch strings.ToLower(t.text) {
		case "attribute_exists", "attribute_not_exists", "attribute_type", "begins_with", "contains":
			return p.function()
		}
	}
	return p.comparison()
}

func (p *parser) function() (condNode, error) {
	name := strings.ToLower(p.next().text)
	p.next() // (
	path, err := p.path()
	if err != nil {
		return nil, err
	}
	var arg operand
	switch name {
	case "attribute_type", "begins_with", "contains":
		if _, err := p.expect(tokComma, ","); err != nil {
			return nil, err
		}
		arg, err = p.operand()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return funcNode{name: name, path: path, arg: arg}, nil
}

func (p *parser) comparison() (condNode, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.next()
	switch {
	case t.kind >= tokEq && t.kind <= tokGe:
		right, err := p.operand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: t.kind, left: left, right: right}, nil
	case t.is("BETWEEN"):
		lo, err := p.operand()
		if err != nil {
			return nil, err
		}
		if !p.next().is("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN")
		}
		hi, err := p.operand()
		if err != nil {
			return nil, err
		}
		return betweenNode{v: left, lo: lo, hi: hi}, nil
	case t.is("IN"):
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		var list []operand
		for {
			o, err := p.operand()
			if err != nil {
				return nil, err
			}
			list = append(list, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inNode{v: left, list: list}, nil
	}
	return nil, fmt.Errorf("expected comparator, got %s", t)
}

func (p *parser) operand() (operand, error) {
	t := p.peek()
	switch {
	case t.kind == tokValue:
		p.next()
		v, ok := p.in.Values[t.text]
		if !ok {
			return nil, fmt.Errorf("undefined expression attribute value %s", t.text)
		}
		return literal{v}, nil
	case t.is("size") && p.toks[p.pos+1].kind == tokLParen:
		p.next()
		p.next()
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return sizeOperand{path}, nil
	}
	path, err := p.path()
	if err != nil {
		return nil, err
	}
	return path, nil
}

func (p Path) value(doc map[string]types.AttributeValue) (types.AttributeValue, bool) {
	return p.resolve(doc)
}

type literal struct{ v types.AttributeValue }

func (l literal) value(map[string]types.AttributeValue) (types.AttributeValue, bool) {
	return l.v, true
}

type sizeOperand struct{ path Path }

func (s sizeOperand) value(doc map[string]types.AttributeValue) (types.AttributeValue, bool) {
	v, ok := s.path.resolve(doc)
	if !ok {
		return nil, false
	}
	var n int
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		n = utf8.RuneCountInString(av.Value)
	case *types.AttributeValueMemberB:
		n = len(av.Value)
	case *types.AttributeValueMemberSS:
		n = len(av.Value)
	case *types.AttributeValueMemberNS:
		n = len(av.Value)
	case *types.AttributeValueMemberBS:
		n = len(av.Value)
	case *types.AttributeValueMemberL:
		n = len(av.Value)
	case *types.AttributeValueMemberM:
		n = len(av.Value)
	default:
		return nil, false
	}
	return &types.AttributeValueMemberN{Value: fmt.Sprint(n)}, true
}

type andNode struct{ l, r condNode }

func (n andNode) eval(doc map[string]types.AttributeValue) bool { return n.l.eval(doc) && n.r.eval(doc) }

type orNode struct{ l, r condNode }

func (n orNode) eval(doc map[string]types.AttributeValue) bool { return n.l.eval(doc) || n.r.eval(doc) }

type notNode struct{ inner condNode }

func (n notNode) eval(doc map[string]types.AttributeValue) bool { return !n.inner.eval(doc) }

type compareNode struct {
	op          tokenKind
	left, right operand
}

func (n compareNode) eval(doc map[string]types.AttributeValue) bool {
	a, okA := n.left.value(doc)
	b, okB := n.right.value(doc)
	if !okA || !okB {
		// a missing attribute is never equal to anything
		return n.op == tokNe
	}
	switch n.op {
	case tokEq:
		return Equal(a, b)
	case tokNe:
		return !Equal(a, b)
	}
	c, ok := compare(a, b)
	if !ok {
		return false
	}
	switch n.op {
	case tokLt:
		return c < 0
	case tokLe:
		return c <= 0
	case tokGt:
		return c > 0
	case tokGe:
		return c >= 0
	}
	return false
}

type betweenNode struct{ v, lo, hi operand }

func (n betweenNode) eval(doc map[string]types.AttributeValue) bool {
	v, ok1 := n.v.value(doc)
	lo, ok2 := n.lo.value(doc)
	hi, ok3 := n.hi.value(doc)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	c1, ok1 := compare(v, lo)
	c2, ok2 := compare(v, hi)
	return ok1 && ok2 && c1 >= 0 && c2 <= 0
}

type inNode struct {
	v    operand
	list []operand
}

func (n inNode) eval(doc map[string]types.AttributeValue) bool {
	v, ok := n.v.value(doc)
	if !ok {
		return false
	}
	for _, o := range n.list {
		if w, ok := o.value(doc); ok && Equal(v, w) {
			return true
		}
	}
	return false
}

type funcNode struct {
	name string
	path Path
	arg  operand
}

func (n funcNode) eval(doc map[string]types.AttributeValue) bool {
	v, exists := n.path.resolve(doc)
	switch n.name {
	case "attribute_exists":
		return exists
	case "attribute_not_exists":
		return !exists
	}
	if !exists {
		return false
	}
	arg, ok := n.arg.value(doc)
	if !ok {
		return false
	}
	switch n.name {
	case "attribute_type":
		s, ok := arg.(*types.AttributeValueMemberS)
		return ok && s.Value == typeName(v)
	case "begins_with":
		switch av := v.(type) {
		case *types.AttributeValueMemberS:
			s, ok := arg.(*types.AttributeValueMemberS)
			return ok && strings.HasPrefix(av.Value, s.Value)
		case *types.AttributeValueMemberB:
			b, ok := arg.(*types.AttributeValueMemberB)
			return ok && bytes.HasPrefix(av.Value, b.Value)
		}
	case "contains":
		return contains(v, arg)
	}
	return false
}

func contains(v, arg types.AttributeValue) bool {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		s, ok := arg.(*types.AttributeValueMemberS)
		return ok && strings.Contains(av.Value, s.Value)
	case *types.AttributeValueMemberSS:
		s, ok := arg.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, e := range av.Value {
			if e == s.Value {
				return true
			}
		}
	case *types.AttributeValueMemberNS:
		for _, e := range av.Value {
			if Equal(&types.AttributeValueMemberN{Value: e}, arg) {
				return true
			}
		}
	case *types.AttributeValueMemberL:
		for _, e := range av.Value {
			if Equal(e, arg) {
				return true
			}
		}
	}
	return false
}
