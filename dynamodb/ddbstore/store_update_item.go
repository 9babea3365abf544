package ddbstore

import (
	"context"
	"fmt"

	"github.com/acksell/larder/dynamodb/ddbstore/expr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// UpdateItem edits an item's attributes, creating the item if it does not
// exist. Key attributes of the table cannot be updated.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := tabl.tableKey(params.Key)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	cond, err := condition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	in := expr.Input{Names: params.ExpressionAttributeNames, Values: params.ExpressionAttributeValues}

	var old, updated map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		old, err = readItem(txn, key)
		if err != nil {
			return err
		}
		if !cond.Eval(old) {
			return conditionFailed()
		}
		base := old
		if base == nil {
			base = params.Key
		}
		if params.UpdateExpression == nil {
			updated = expr.Clone(base)
		} else {
			updated, err = expr.ApplyUpdate(*params.UpdateExpression, in, base)
			if err != nil {
				return err
			}
		}
		for name, v := range params.Key {
			if !expr.Equal(updated[name], v) {
				return fmt.Errorf("cannot update attribute %s, it is part of the key", name)
			}
		}
		return tabl.writeItem(txn, updated, old)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = updated
	case types.ReturnValueAllOld:
		out.Attributes = old
	case types.ReturnValueUpdatedNew:
		out.Attributes = changed(updated, old)
	case types.ReturnValueUpdatedOld:
		out.Attributes = changed(old, updated)
	}
	return out, nil
}

// changed returns the top-level attributes of a that are absent from or
// different in b.
func changed(a, b map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for k, v := range a {
		if w, ok := b[k]; !ok || !expr.Equal(v, w) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
