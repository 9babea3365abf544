package expr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyCondition is a parsed key condition expression: an equality on the
// partition key, optionally ANDed with one sort key condition.
type KeyCondition struct {
	Partition types.AttributeValue
	sort      condNode
}

// ParseKeyCondition parses src against an index whose partition key
// attribute is partitionKey and whose sort key attribute is sortKey.
func ParseKeyCondition(src string, in Input, partitionKey, sortKey string) (KeyCondition, error) {
	c, err := ParseCondition(src, in)
	if err != nil {
		return KeyCondition{}, fmt.Errorf("key %w", err)
	}
	var kc KeyCondition
	conjuncts := flattenAnd(c.root, nil)
	if len(conjuncts) > 2 {
		return KeyCondition{}, fmt.Errorf("key condition: at most two conditions are allowed, got %d", len(conjuncts))
	}
	for _, n := range conjuncts {
		if v, ok := partitionEquality(n, partitionKey); ok && kc.Partition == nil {
			kc.Partition = v
			continue
		}
		if sortKey == "" || !onlyTouches(n, sortKey) {
			return KeyCondition{}, fmt.Errorf("key condition: unsupported condition on non-key attribute")
		}
		kc.sort = n
	}
	if kc.Partition == nil {
		return KeyCondition{}, fmt.Errorf("key condition: partition key %q must be matched with =", partitionKey)
	}
	return kc, nil
}

// MatchSort reports whether an item satisfies the sort key condition.
func (k KeyCondition) MatchSort(item map[string]types.AttributeValue) bool {
	if k.sort == nil {
		return true
	}
	return k.sort.eval(item)
}

func flattenAnd(n condNode, out []condNode) []condNode {
	if a, ok := n.(andNode); ok {
		out = flattenAnd(a.l, out)
		return flattenAnd(a.r, out)
	}
	return append(out, n)
}

func partitionEquality(n condNode, pk string) (types.AttributeValue, bool) {
	c, ok := n.(compareNode)
	if !ok || c.op != tokEq {
		return nil, false
	}
	path, ok := c.left.(Path)
	if !ok || len(path) != 1 || path[0].name != pk {
		return nil, false
	}
	lit, ok := c.right.(literal)
	if !ok {
		return nil, false
	}
	return lit.v, true
}

func onlyTouches(n condNode, attr string) bool {
	isKey := func(o operand) bool {
		if _, ok := o.(literal); ok {
			return true
		}
		p, ok := o.(Path)
		return ok && len(p) == 1 && p[0].name == attr
	}
	switch c := n.(type) {
	case compareNode:
		return c.op != tokNe && isKey(c.left) && isKey(c.right)
	case betweenNode:
		return isKey(c.v) && isKey(c.lo) && isKey(c.hi)
	case funcNode:
		return c.name == "begins_with" && len(c.path) == 1 && c.path[0].name == attr
	}
	return false
}
