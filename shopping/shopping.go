// Package shopping folds scaled recipe ingredients into a deduplicated,
// categorized shopping list.
package shopping

import (
	"slices"
	"strings"

	"github.com/acksell/larder"
	"github.com/acksell/larder/quantity"
)

// Defaults for blank ingredient fields.
const (
	DefaultQuantity = "1"
	DefaultUnit     = "item"
)

// Item is one line of the shopping list.
type Item struct {
	Name     string   `json:"name" yaml:"name"`
	Unit     string   `json:"unit" yaml:"unit"`
	Quantity Amount   `json:"quantity" yaml:"quantity"`
	Category string   `json:"category" yaml:"category"`
	Sources  []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// Aggregator accumulates ingredients from many recipes. The zero value is
// ready to use. It is not safe for concurrent use.
type Aggregator struct {
	items map[string]*Item
}

// Key identifies an item: its name and unit, trimmed and lowercased.
func Key(name, unit string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "_" + strings.ToLower(strings.TrimSpace(unit))
}

// Add scales every ingredient of one recipe by factor and merges it into the
// list. Ingredients without a name are skipped.
func (a *Aggregator) Add(ingredients []larder.Ingredient, factor float64, recipeName string) {
	if a.items == nil {
		a.items = make(map[string]*Item)
	}
	for _, ing := range ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			continue
		}
		q := strings.TrimSpace(ing.Quantity)
		if q == "" {
			q = DefaultQuantity
		}
		unit := strings.TrimSpace(ing.Unit)
		if unit == "" {
			unit = DefaultUnit
		}
		amount := ParseAmount(quantity.Scale(q, factor))

		k := Key(name, unit)
		it, ok := a.items[k]
		if !ok {
			it = &Item{Name: name, Unit: unit, Quantity: amount}
			a.items[k] = it
		} else {
			it.Quantity = it.Quantity.Plus(amount)
		}
		if recipeName != "" && !slices.Contains(it.Sources, recipeName) {
			it.Sources = append(it.Sources, recipeName)
		}
	}
}

// Len returns the number of distinct items.
func (a *Aggregator) Len() int { return len(a.items) }

// List returns the items grouped by category. Only categories holding items
// are present; items are sorted by name, then unit. The result is never nil.
func (a *Aggregator) List() map[string][]Item {
	out := make(map[string][]Item)
	for _, it := range a.items {
		item := *it
		item.Category = Categorize(item.Name)
		item.Sources = slices.Clone(it.Sources)
		slices.Sort(item.Sources)
		out[item.Category] = append(out[item.Category], item)
	}
	for _, items := range out {
		slices.SortFunc(items, func(x, y Item) int {
			if c := strings.Compare(strings.ToLower(x.Name), strings.ToLower(y.Name)); c != 0 {
				return c
			}
			return strings.Compare(strings.ToLower(x.Unit), strings.ToLower(y.Unit))
		})
	}
	return out
}
