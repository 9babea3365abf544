package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if params.Item == nil {
		return nil, fmt.Errorf("item is required")
	}
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, ok, err := tabl.keys.encode(params.Item)
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("put item: missing key attributes")
	}
	cond, err := condition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var old map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		old, err = readItem(txn, key)
		if err != nil {
			return err
		}
		if !cond.Eval(old) {
			return conditionFailed()
		}
		return tabl.writeItem(txn, params.Item, old)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = old
	}
	return out, nil
}
