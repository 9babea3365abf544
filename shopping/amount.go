package shopping

import (
	"strings"

	"github.com/acksell/larder/quantity"
)

// Amount is the quantity of a shopping-list item. A Merged amount is one
// number with optional trailing text and can be summed. An Unmerged amount
// is display text built from quantities that could not be combined, such
// as "1-2 + 3"; it is meant for a human to read.
type Amount struct {
	merged bool
	value  float64
	rest   string
	text   string
}

// Merged returns a summable amount. rest is the text that followed the
// number, e.g. " large".
func Merged(v float64, rest string) Amount {
	return Amount{merged: true, value: v, rest: rest}
}

// Unmerged returns an amount that is only display text.
func Unmerged(text string) Amount {
	return Amount{text: text}
}

// ParseAmount reads a scaled quantity. Anything but a single number, such
// as a range or plain text, is Unmerged.
func ParseAmount(q string) Amount {
	p, ok := quantity.Parse(q)
	if !ok {
		return Unmerged(strings.TrimSpace(q))
	}
	v, single := p.Value()
	if !single {
		return Unmerged(p.String())
	}
	return Merged(v, p.Rest)
}

func (a Amount) IsMerged() bool { return a.merged }

// Value returns the number of a Merged amount.
func (a Amount) Value() (float64, bool) {
	return a.value, a.merged
}

func (a Amount) String() string {
	if a.merged {
		return quantity.Format(a.value) + a.rest
	}
	return a.text
}

// MarshalText renders the amount as its display string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Plus combines two amounts. Two Merged amounts whose trailing texts agree,
// or where one has none, are summed. Anything else is joined as
// "a + b" and becomes Unmerged.
func (a Amount) Plus(b Amount) Amount {
	if a.merged && b.merged {
		ra, rb := normRest(a.rest), normRest(b.rest)
		switch {
		case ra == rb:
			return Merged(a.value+b.value, a.rest)
		case ra == "":
			return Merged(a.value+b.value, b.rest)
		case rb == "":
			return Merged(a.value+b.value, a.rest)
		}
	}
	return Unmerged(a.String() + " + " + b.String())
}

func normRest(rest string) string {
	return strings.ToLower(strings.TrimSpace(rest))
}
