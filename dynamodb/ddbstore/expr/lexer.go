// Package expr evaluates the subset of DynamoDB condition, key condition and
// update expressions produced by the aws-sdk-go-v2 expression builder.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokName  // #name
	tokValue // :value
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokPlus
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

// is reports whether t is the keyword kw, case-insensitively.
func (t token) is(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '#' || c == ':':
			start := i
			i++
			for i < len(src) && isIdentChar(rune(src[i])) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("empty placeholder at %d", start)
			}
			kind := tokName
			if c == ':' {
				kind = tokValue
			}
			toks = append(toks, token{kind: kind, text: src[start:i], pos: start})
		case unicode.IsDigit(c):
			start := i
			for i < len(src) && unicode.IsDigit(rune(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentChar(c):
			start := i
			for i < len(src) && isIdentChar(rune(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			kind, width := punct(src[i:])
			if width == 0 {
				return nil, fmt.Errorf("unexpected character %q at %d", c, i)
			}
			toks = append(toks, token{kind: kind, text: src[i : i+width], pos: i})
			i += width
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func punct(s string) (tokenKind, int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "<>":
			return tokNe, 2
		case "<=":
			return tokLe, 2
		case ">=":
			return tokGe, 2
		}
	}
	switch s[0] {
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	case '[':
		return tokLBracket, 1
	case ']':
		return tokRBracket, 1
	case ',':
		return tokComma, 1
	case '.':
		return tokDot, 1
	case '=':
		return tokEq, 1
	case '<':
		return tokLt, 1
	case '>':
		return tokGt, 1
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	}
	return tokEOF, 0
}

func isIdentChar(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// parser is shared by the condition and update grammars.
type parser struct {
	toks []token
	pos  int
	in   Input
}

func newParser(src string, in Input) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, in: in}, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s, got %s", what, t)
	}
	return t, nil
}

// path parses an attribute path such as #a.#b[2] or plain names.
func (p *parser) path() (Path, error) {
	var out Path
	for {
		t := p.next()
		switch t.kind {
		case tokName:
			name, ok := p.in.Names[t.text]
			if !ok {
				return nil, fmt.Errorf("undefined expression attribute name %s", t.text)
			}
			out = append(out, pathElem{name: name, index: -1})
		case tokIdent:
			out = append(out, pathElem{name: t.text, index: -1})
		default:
			return nil, fmt.Errorf("expected attribute path, got %s", t)
		}
		for p.peek().kind == tokLBracket {
			p.next()
			n, err := p.expect(tokNumber, "list index")
			if err != nil {
				return nil, err
			}
			idx, err := strconv.Atoi(n.text)
			if err != nil {
				return nil, fmt.Errorf("list index %s: %w", n.text, err)
			}
			if _, err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			out = append(out, pathElem{index: idx})
		}
		if p.peek().kind != tokDot {
			return out, nil
		}
		p.next()
	}
}
