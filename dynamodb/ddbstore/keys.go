package ddbstore

import (
	"bytes"
	"fmt"

	"github.com/acksell/larder/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Badger key layout. Components are escaped and separated by 0x00 so that
// byte order matches DynamoDB's UTF-8 string order within a partition.
//
//	table: t/{table} 0 {pk} 0 {sk}
//	index: g/{table} 0 {index} 0 {gsi pk} 0 {gsi sk} 0 {pk} 0 {sk}
//
// Index entries carry the table key so that items sharing an index key
// don't overwrite each other.

const (
	keySeparator byte = 0x00
	escapeByte   byte = 0x01

	tablePrefix = "t/"
	indexPrefix = "g/"
)

// escape rewrites 0x00 as 0x01 0x01 and 0x01 as 0x01 0x02, so the separator
// never appears inside a component and ordering is preserved.
func escape(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case keySeparator:
			buf.WriteByte(escapeByte)
			buf.WriteByte(0x01)
		case escapeByte:
			buf.WriteByte(escapeByte)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
}

// keyEncoder builds badger keys for the table itself or one of its indexes.
type keyEncoder struct {
	base  []byte
	keys  table.PrimaryKeyDefinition
	index *table.GSIDefinition
	table table.PrimaryKeyDefinition
}

func newTableEncoder(def table.TableDefinition) keyEncoder {
	var buf bytes.Buffer
	buf.WriteString(tablePrefix)
	buf.WriteString(def.Name)
	buf.WriteByte(keySeparator)
	return keyEncoder{base: buf.Bytes(), keys: def.KeyDefinitions, table: def.KeyDefinitions}
}

func newIndexEncoder(def table.TableDefinition, gsi table.GSIDefinition) keyEncoder {
	var buf bytes.Buffer
	buf.WriteString(indexPrefix)
	buf.WriteString(def.Name)
	buf.WriteByte(keySeparator)
	buf.WriteString(gsi.Name)
	buf.WriteByte(keySeparator)
	return keyEncoder{base: buf.Bytes(), keys: gsi.KeyDefinitions, index: &gsi, table: def.KeyDefinitions}
}

// partitionPrefix is the prefix shared by every entry in one partition.
func (e keyEncoder) partitionPrefix(pk string) []byte {
	buf := bytes.NewBuffer(append([]byte(nil), e.base...))
	escape(buf, pk)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// encode builds the badger key of an item. ok is false when the item is not
// part of the index because it lacks one of the index key attributes.
func (e keyEncoder) encode(item map[string]types.AttributeValue) (key []byte, ok bool, err error) {
	parts, ok, err := stringKey(e.keys, item)
	if !ok || err != nil {
		return nil, ok, err
	}
	if e.index != nil {
		tableParts, ok, err := stringKey(e.table, item)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("item is missing its table key")
		}
		parts = append(parts, tableParts...)
	}
	buf := bytes.NewBuffer(append([]byte(nil), e.base...))
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(keySeparator)
		}
		escape(buf, p)
	}
	if e.keys.SortKey.Name == "" && e.index == nil {
		buf.WriteByte(keySeparator)
	}
	return buf.Bytes(), true, nil
}

// keyAttributes returns the attributes a query needs to resume after item.
func (e keyEncoder) keyAttributes(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for _, def := range []table.PrimaryKeyDefinition{e.table, e.keys} {
		for _, k := range []table.KeyDef{def.PartitionKey, def.SortKey} {
			if v, ok := item[k.Name]; ok && k.Name != "" {
				out[k.Name] = v
			}
		}
	}
	return out
}

// stringKey reads the string values of a key definition from item.
func stringKey(def table.PrimaryKeyDefinition, item map[string]types.AttributeValue) ([]string, bool, error) {
	var parts []string
	for _, k := range []table.KeyDef{def.PartitionKey, def.SortKey} {
		if k.Name == "" {
			continue
		}
		av, ok := item[k.Name]
		if !ok {
			return nil, false, nil
		}
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, false, fmt.Errorf("key attribute %q must be a string, got %T", k.Name, av)
		}
		if s.Value == "" {
			return nil, false, fmt.Errorf("key attribute %q must not be empty", k.Name)
		}
		parts = append(parts, s.Value)
	}
	return parts, true, nil
}

func incrementBytes(b []byte) []byte {
	result := make([]byte, len(b))
	copy(result, b)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] < 0xFF {
			result[i]++
			return result
		}
		result[i] = 0
	}
	return append(result, 0x00)
}
