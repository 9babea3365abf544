package ddbstore

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxItemSize mirrors DynamoDB's 400KB item limit. The encoded form is
// slightly larger than DynamoDB's own accounting, which is close enough.
const maxItemSize = 400 * 1024

// storedValue is the on-disk form of an attribute value. T names the
// DynamoDB type; numbers are kept in S as their decimal string.
type storedValue struct {
	T    string                 `json:"t"`
	S    string                 `json:"s,omitempty"`
	B    []byte                 `json:"b,omitempty"`
	BOOL bool                   `json:"bool,omitempty"`
	Set  []string               `json:"set,omitempty"`
	BS   [][]byte               `json:"bs,omitempty"`
	L    []storedValue          `json:"l,omitempty"`
	M    map[string]storedValue `json:"m,omitempty"`
}

func encodeItem(item map[string]types.AttributeValue) ([]byte, error) {
	m, err := toStoredMap(item)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	if len(b) > maxItemSize {
		return nil, fmt.Errorf("item size %d has exceeded the maximum allowed size", len(b))
	}
	return b, nil
}

func decodeItem(b []byte) (map[string]types.AttributeValue, error) {
	var m map[string]storedValue
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return fromStoredMap(m)
}

func toStoredMap(item map[string]types.AttributeValue) (map[string]storedValue, error) {
	out := make(map[string]storedValue, len(item))
	for k, v := range item {
		sv, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func toStored(v types.AttributeValue) (storedValue, error) {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return storedValue{T: "S", S: av.Value}, nil
	case *types.AttributeValueMemberN:
		return storedValue{T: "N", S: av.Value}, nil
	case *types.AttributeValueMemberB:
		return storedValue{T: "B", B: av.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedValue{T: "BOOL", BOOL: av.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedValue{T: "NULL"}, nil
	case *types.AttributeValueMemberSS:
		return storedValue{T: "SS", Set: av.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedValue{T: "NS", Set: av.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedValue{T: "BS", BS: av.Value}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedValue, len(av.Value))
		for i, e := range av.Value {
			sv, err := toStored(e)
			if err != nil {
				return storedValue{}, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = sv
		}
		return storedValue{T: "L", L: l}, nil
	case *types.AttributeValueMemberM:
		m, err := toStoredMap(av.Value)
		if err != nil {
			return storedValue{}, err
		}
		return storedValue{T: "M", M: m}, nil
	}
	return storedValue{}, fmt.Errorf("unsupported attribute value %T", v)
}

func fromStoredMap(m map[string]storedValue) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for k, sv := range m {
		v, err := fromStored(sv)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func fromStored(sv storedValue) (types.AttributeValue, error) {
	switch sv.T {
	case "S":
		return &types.AttributeValueMemberS{Value: sv.S}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sv.S}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sv.B}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sv.BOOL}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sv.Set}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sv.Set}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sv.BS}, nil
	case "L":
		l := make([]types.AttributeValue, len(sv.L))
		for i, e := range sv.L {
			v, err := fromStored(e)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	case "M":
		m, err := fromStoredMap(sv.M)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unknown stored type %q", sv.T)
}
